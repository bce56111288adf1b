// Package registry holds the discovered-device list and the connected device.
//
// State values are immutable once returned by Reduce. A reduction that changes
// nothing returns the same *State, so observers can detect changes by pointer.
package registry

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blemon/internal/device"
)

// State is a registry snapshot: discovered devices in first-seen order plus the
// optional connected device.
type State struct {
	devices   *orderedmap.OrderedMap[string, device.DiscoveredDevice]
	connected *device.DiscoveredDevice
}

// NewState returns the empty registry.
func NewState() *State {
	return &State{devices: orderedmap.New[string, device.DiscoveredDevice]()}
}

// Devices returns the discovered devices in insertion order.
func (s *State) Devices() []device.DiscoveredDevice {
	out := make([]device.DiscoveredDevice, 0, s.devices.Len())
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Len returns the number of discovered devices.
func (s *State) Len() int {
	return s.devices.Len()
}

// Device looks up a discovered device by id.
func (s *State) Device(id string) (device.DiscoveredDevice, bool) {
	return s.devices.Get(id)
}

// Connected returns the connected device. It need not be in the discovered list.
func (s *State) Connected() (device.DiscoveredDevice, bool) {
	if s.connected == nil {
		return device.DiscoveredDevice{}, false
	}
	return *s.connected, true
}

func (s *State) withDevice(d device.DiscoveredDevice) *State {
	devices := orderedmap.New[string, device.DiscoveredDevice](s.devices.Len() + 1)
	for pair := s.devices.Oldest(); pair != nil; pair = pair.Next() {
		devices.Set(pair.Key, pair.Value)
	}
	devices.Set(d.ID, d)
	return &State{devices: devices, connected: s.connected}
}

// Action is a registry transition. The set of actions is closed.
type Action interface {
	action()
}

// Add appends Device unless its ID is already present. Later advertisements for a
// known ID never replace the stored entry.
type Add struct{ Device device.DiscoveredDevice }

// Connected records Device as the connected device.
type Connected struct{ Device device.DiscoveredDevice }

// Disconnect clears the connected device.
type Disconnect struct{}

// Clear empties the discovered list and keeps the connected device.
type Clear struct{}

func (Add) action()        {}
func (Connected) action()  {}
func (Disconnect) action() {}
func (Clear) action()      {}

// Name returns a short label for logging.
func Name(a Action) string {
	switch a.(type) {
	case Add:
		return "add"
	case Connected:
		return "connected"
	case Disconnect:
		return "disconnect"
	case Clear:
		return "clear"
	default:
		return "unknown"
	}
}

// Reduce applies a to s. Unknown actions leave the state unchanged. A nil s is the
// empty registry.
func Reduce(s *State, a Action) *State {
	if s == nil {
		s = NewState()
	}

	switch act := a.(type) {
	case Add:
		if _, ok := s.devices.Get(act.Device.ID); ok {
			return s
		}
		return s.withDevice(act.Device)
	case Connected:
		d := act.Device
		return &State{devices: s.devices, connected: &d}
	case Disconnect:
		if s.connected == nil {
			return s
		}
		return &State{devices: s.devices}
	case Clear:
		if s.devices.Len() == 0 {
			return s
		}
		return &State{devices: orderedmap.New[string, device.DiscoveredDevice](), connected: s.connected}
	default:
		return s
	}
}
