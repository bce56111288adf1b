//go:build test

package testutils

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/registry"
)

// RecordingDispatcher is a registry.Store that remembers the name of every
// dispatched action, including the ones that did not change the state.
type RecordingDispatcher struct {
	*registry.Store

	mu      sync.Mutex
	actions []string
}

func NewRecordingDispatcher(logger *logrus.Logger) *RecordingDispatcher {
	return &RecordingDispatcher{Store: registry.NewStore(logger)}
}

func (d *RecordingDispatcher) Dispatch(a registry.Action) *registry.State {
	d.mu.Lock()
	d.actions = append(d.actions, registry.Name(a))
	d.mu.Unlock()
	return d.Store.Dispatch(a)
}

// Actions returns the dispatched action names in order.
func (d *RecordingDispatcher) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

// Reset forgets the recorded actions.
func (d *RecordingDispatcher) Reset() {
	d.mu.Lock()
	d.actions = nil
	d.mu.Unlock()
}
