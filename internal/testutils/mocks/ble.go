//go:build test

package mocks

import (
	"context"
	"sync"

	"github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockAddr is a testify mock for ble.Addr.
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

// MockAdvertisement is a testify mock for ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string { return m.Called().String(0) }

func (m *MockAdvertisement) ManufacturerData() []byte {
	v, _ := m.Called().Get(0).([]byte)
	return v
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	v, _ := m.Called().Get(0).([]ble.ServiceData)
	return v
}

func (m *MockAdvertisement) Services() []ble.UUID {
	v, _ := m.Called().Get(0).([]ble.UUID)
	return v
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	v, _ := m.Called().Get(0).([]ble.UUID)
	return v
}

func (m *MockAdvertisement) TxPowerLevel() int { return m.Called().Int(0) }
func (m *MockAdvertisement) Connectable() bool { return m.Called().Bool(0) }

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	v, _ := m.Called().Get(0).([]ble.UUID)
	return v
}

func (m *MockAdvertisement) RSSI() int { return m.Called().Int(0) }

func (m *MockAdvertisement) Addr() ble.Addr {
	v, _ := m.Called().Get(0).(ble.Addr)
	return v
}

// MockDevice is a testify mock for goble.Device.
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	return m.Called(ctx, allowDup, handler).Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, id string) (goble.Client, error) {
	args := m.Called(ctx, id)
	client, _ := args.Get(0).(goble.Client)
	return client, args.Error(1)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

// MockClient is a testify mock for goble.Client. It also exposes a Disconnected
// channel and keeps the notification handlers it was subscribed with so tests can
// push values.
type MockClient struct {
	mock.Mock

	mu           sync.Mutex
	handlers     map[*ble.Characteristic]ble.NotificationHandler
	disconnected chan struct{}
	dropOnce     sync.Once
}

func NewMockClient() *MockClient {
	return &MockClient{
		handlers:     make(map[*ble.Characteristic]ble.NotificationHandler),
		disconnected: make(chan struct{}),
	}
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	err := m.Called(c, ind, h).Error(0)
	if err == nil {
		m.mu.Lock()
		m.handlers[c] = h
		m.mu.Unlock()
	}
	return err
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	m.mu.Lock()
	delete(m.handlers, c)
	m.mu.Unlock()
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// Drop simulates the peripheral closing the link.
func (m *MockClient) Drop() {
	m.dropOnce.Do(func() { close(m.disconnected) })
}

// Notify delivers data to the handler subscribed on c. It reports whether a
// handler was registered.
func (m *MockClient) Notify(c *ble.Characteristic, data []byte) bool {
	m.mu.Lock()
	h, ok := m.handlers[c]
	m.mu.Unlock()
	if ok {
		h(data)
	}
	return ok
}
