package registry

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
)

// Store serializes reductions and notifies observers of every state change.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     *State
	observers map[uint64]func(*State)
	nextID    uint64
	logger    *logrus.Logger
}

func NewStore(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		state:     NewState(),
		observers: make(map[uint64]func(*State)),
		logger:    logger,
	}
}

// State returns the current snapshot.
func (s *Store) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces a into the store and returns the resulting state. Observers run
// synchronously, in dispatch order, only when the state changed. They must not call
// Dispatch themselves.
func (s *Store) Dispatch(a Action) *State {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, a)
	if next == prev {
		s.mu.Unlock()
		if Name(a) == "unknown" {
			s.logger.WithField("action", a).Warn("Ignoring unknown registry action")
		}
		return prev
	}
	s.state = next
	observers := make([]func(*State), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"action":  Name(a),
		"devices": next.Len(),
	}).Debug("Registry updated")

	for _, fn := range observers {
		fn(next)
	}
	return next
}

// Subscribe registers fn for state changes.
func (s *Store) Subscribe(fn func(*State)) device.Subscription {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.mu.Unlock()

	return device.SubscriptionFunc(func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	})
}
