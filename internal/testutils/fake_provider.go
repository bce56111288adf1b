//go:build test

package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blemon/internal/device"
)

// FakeAdvertisement is a plain device.Advertisement value.
type FakeAdvertisement struct {
	ID           string
	Name         string
	Data         []byte
	Rssi         int
	ServiceUUIDs []string
}

func (a FakeAdvertisement) LocalName() string        { return a.Name }
func (a FakeAdvertisement) ManufacturerData() []byte { return a.Data }
func (a FakeAdvertisement) TxPowerLevel() int        { return 127 }
func (a FakeAdvertisement) Connectable() bool        { return true }
func (a FakeAdvertisement) RSSI() int                { return a.Rssi }
func (a FakeAdvertisement) Addr() string             { return a.ID }
func (a FakeAdvertisement) Services() []string       { return a.ServiceUUIDs }

// Device returns the DiscoveredDevice a scan reports for this advertisement.
func (a FakeAdvertisement) Device() device.DiscoveredDevice {
	return device.DeviceFromAdvertisement(a)
}

// FakeProvider is an in-memory device.Provider driven by the test.
//
//	provider := testutils.NewFakeProvider()
//	provider.WithPeripheral(device.DiscoveredDevice{ID: "X1"}).
//	    WithService("180F").
//	    WithCharacteristic("2A19", "read,notify")
type FakeProvider struct {
	mu sync.Mutex

	peripherals map[string]*FakePeripheral
	connected   map[string]bool

	state          device.RadioState
	stateListeners map[int]func(device.RadioState)
	discListeners  map[string]map[int]func(error)
	nextID         int

	scanAds     []device.Advertisement
	scanHandler func(device.Advertisement)
	scanErrCh   chan error
	scanCalls   int
	scanStarted chan struct{}

	ConnectErr     error
	ConnectGate    chan struct{} // when set, Connect blocks until closed or ctx done
	connectCalls   int
	cancelCalls    int
	isConnectedErr error
	closed         bool
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		peripherals:    make(map[string]*FakePeripheral),
		connected:      make(map[string]bool),
		state:          device.RadioPoweredOn,
		stateListeners: make(map[int]func(device.RadioState)),
		discListeners:  make(map[string]map[int]func(error)),
		scanStarted:    make(chan struct{}, 16),
	}
}

// WithPeripheral registers a connectable peripheral.
func (p *FakeProvider) WithPeripheral(d device.DiscoveredDevice) *FakePeripheral {
	per := &FakePeripheral{
		provider: p,
		dev:      d,
		monitors: make(map[string]*fakeMonitor),
	}
	p.mu.Lock()
	p.peripherals[d.ID] = per
	p.mu.Unlock()
	return per
}

// Peripheral returns a registered peripheral.
func (p *FakeProvider) Peripheral(id string) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peripherals[id]
}

// WithAdvertisements queues advertisements delivered at the start of every Scan.
func (p *FakeProvider) WithAdvertisements(ads ...device.Advertisement) *FakeProvider {
	p.mu.Lock()
	p.scanAds = append(p.scanAds, ads...)
	p.mu.Unlock()
	return p
}

// WithState sets the initial radio state.
func (p *FakeProvider) WithState(s device.RadioState) *FakeProvider {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	return p
}

func (p *FakeProvider) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	errCh := make(chan error, 1)
	p.mu.Lock()
	p.scanCalls++
	p.scanHandler = handler
	p.scanErrCh = errCh
	ads := append([]device.Advertisement(nil), p.scanAds...)
	p.mu.Unlock()

	select {
	case p.scanStarted <- struct{}{}:
	default:
	}

	for _, adv := range ads {
		handler(adv)
	}

	defer func() {
		p.mu.Lock()
		if p.scanErrCh == errCh {
			p.scanHandler = nil
			p.scanErrCh = nil
		}
		p.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Advertise delivers adv to the running scan. It reports false when no scan runs.
func (p *FakeProvider) Advertise(adv device.Advertisement) bool {
	p.mu.Lock()
	h := p.scanHandler
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(adv)
	return true
}

// FailScan terminates the running scan with err.
func (p *FakeProvider) FailScan(err error) bool {
	p.mu.Lock()
	ch := p.scanErrCh
	p.mu.Unlock()
	if ch == nil {
		return false
	}
	ch <- err
	return true
}

// ScanStarted is signalled each time Scan begins.
func (p *FakeProvider) ScanStarted() <-chan struct{} {
	return p.scanStarted
}

// Scanning reports whether a Scan call is currently running.
func (p *FakeProvider) Scanning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanHandler != nil
}

func (p *FakeProvider) ScanCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scanCalls
}

func (p *FakeProvider) Connect(ctx context.Context, id string) (device.Peripheral, error) {
	p.mu.Lock()
	p.connectCalls++
	gate := p.ConnectGate
	connectErr := p.ConnectErr
	per, ok := p.peripherals[id]
	already := p.connected[id]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}
	if !ok {
		return nil, &device.NotFoundError{Resource: "device", IDs: []string{id}}
	}
	if already {
		return nil, device.ErrAlreadyConnected
	}

	p.mu.Lock()
	p.connected[id] = true
	p.mu.Unlock()
	return per, nil
}

func (p *FakeProvider) ConnectCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectCalls
}

func (p *FakeProvider) IsConnected(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isConnectedErr != nil {
		return false, p.isConnectedErr
	}
	return p.connected[id], nil
}

// FailIsConnected makes IsConnected return err.
func (p *FakeProvider) FailIsConnected(err error) {
	p.mu.Lock()
	p.isConnectedErr = err
	p.mu.Unlock()
}

func (p *FakeProvider) CancelConnection(_ context.Context, id string) error {
	p.mu.Lock()
	p.cancelCalls++
	if !p.connected[id] {
		p.mu.Unlock()
		return device.ErrNotConnected
	}
	p.mu.Unlock()
	p.disconnect(id, nil)
	return nil
}

func (p *FakeProvider) CancelCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelCalls
}

// DropLink simulates the peripheral closing the connection.
func (p *FakeProvider) DropLink(id string) {
	p.disconnect(id, device.ErrNotConnected)
}

func (p *FakeProvider) disconnect(id string, cause error) {
	p.mu.Lock()
	delete(p.connected, id)
	per := p.peripherals[id]
	listeners := make([]func(error), 0, len(p.discListeners[id]))
	for _, fn := range p.discListeners[id] {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	if per != nil {
		per.failAll(device.ErrNotConnected)
	}
	for _, fn := range listeners {
		fn(cause)
	}
}

func (p *FakeProvider) OnDeviceDisconnected(id string, fn func(err error)) device.Subscription {
	p.mu.Lock()
	p.nextID++
	key := p.nextID
	if p.discListeners[id] == nil {
		p.discListeners[id] = make(map[int]func(error))
	}
	p.discListeners[id][key] = fn
	p.mu.Unlock()

	return device.SubscriptionFunc(func() {
		p.mu.Lock()
		delete(p.discListeners[id], key)
		p.mu.Unlock()
	})
}

// DisconnectListeners returns the number of registered disconnect listeners for id.
func (p *FakeProvider) DisconnectListeners(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.discListeners[id])
}

func (p *FakeProvider) OnStateChange(fn func(device.RadioState), emitCurrent bool) device.Subscription {
	p.mu.Lock()
	p.nextID++
	key := p.nextID
	p.stateListeners[key] = fn
	current := p.state
	p.mu.Unlock()

	if emitCurrent {
		fn(current)
	}
	return device.SubscriptionFunc(func() {
		p.mu.Lock()
		delete(p.stateListeners, key)
		p.mu.Unlock()
	})
}

// SetState changes the radio state and notifies listeners.
func (p *FakeProvider) SetState(s device.RadioState) {
	p.mu.Lock()
	p.state = s
	listeners := make([]func(device.RadioState), 0, len(p.stateListeners))
	for _, fn := range p.stateListeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// StateListeners returns the number of registered radio state listeners.
func (p *FakeProvider) StateListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.stateListeners)
}

func (p *FakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *FakeProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeMonitor struct {
	char    device.Characteristic
	handler device.MonitorHandler
	removed bool
}

// FakePeripheral is the device.Peripheral returned by FakeProvider.Connect.
type FakePeripheral struct {
	provider *FakeProvider
	dev      device.DiscoveredDevice

	mu          sync.Mutex
	services    []device.Service
	monitors    map[string]*fakeMonitor
	monitorErrs map[string]error
	DiscoverErr error
	discovered  int
}

// WithService adds a service; following WithCharacteristic calls attach to it.
func (fp *FakePeripheral) WithService(uuid string) *FakePeripheral {
	fp.mu.Lock()
	fp.services = append(fp.services, device.Service{UUID: device.NormalizeUUID(uuid)})
	fp.mu.Unlock()
	return fp
}

// WithCharacteristic adds a characteristic to the last service. props is a comma
// separated list of read, notify, indicate.
func (fp *FakePeripheral) WithCharacteristic(uuid, props string) *FakePeripheral {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if len(fp.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &fp.services[len(fp.services)-1]
	bits := parseCharacteristicProperties(props)
	c := device.Characteristic{
		ServiceUUID:   last.UUID,
		UUID:          device.NormalizeUUID(uuid),
		IsReadable:    bits&blelib.CharRead != 0,
		IsNotifiable:  bits&blelib.CharNotify != 0,
		IsIndicatable: bits&blelib.CharIndicate != 0,
	}
	last.Characteristics = append(last.Characteristics, c)
	return fp
}

// WithMonitorError makes Monitor fail for the "service/char" key.
func (fp *FakePeripheral) WithMonitorError(key string, err error) *FakePeripheral {
	fp.mu.Lock()
	if fp.monitorErrs == nil {
		fp.monitorErrs = make(map[string]error)
	}
	fp.monitorErrs[key] = err
	fp.mu.Unlock()
	return fp
}

func (fp *FakePeripheral) Device() device.DiscoveredDevice {
	return fp.dev
}

func (fp *FakePeripheral) DiscoverAllServicesAndCharacteristics(ctx context.Context) ([]device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.discovered++
	if fp.DiscoverErr != nil {
		return nil, fp.DiscoverErr
	}
	return append([]device.Service(nil), fp.services...), nil
}

func (fp *FakePeripheral) Monitor(char device.Characteristic, handler device.MonitorHandler) (device.Subscription, error) {
	key := char.Key()
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if err, ok := fp.monitorErrs[key]; ok {
		return nil, &device.MonitorError{ServiceUUID: char.ServiceUUID, CharacteristicUUID: char.UUID, Err: err}
	}
	m := &fakeMonitor{char: char, handler: handler}
	fp.monitors[key] = m
	return device.SubscriptionFunc(func() {
		fp.mu.Lock()
		m.removed = true
		if fp.monitors[key] == m {
			delete(fp.monitors, key)
		}
		fp.mu.Unlock()
	}), nil
}

// ActiveMonitors returns the keys of characteristics currently monitored.
func (fp *FakePeripheral) ActiveMonitors() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	keys := make([]string, 0, len(fp.monitors))
	for k := range fp.monitors {
		keys = append(keys, k)
	}
	return keys
}

// Push delivers a base64 payload to the monitor for key ("service/char").
func (fp *FakePeripheral) Push(key, base64Value string) error {
	fp.mu.Lock()
	m, ok := fp.monitors[key]
	fp.mu.Unlock()
	if !ok {
		return fmt.Errorf("no monitor for %s", key)
	}
	m.handler(&device.Value{
		ServiceUUID:        m.char.ServiceUUID,
		CharacteristicUUID: m.char.UUID,
		Base64:             base64Value,
	}, nil)
	return nil
}

// Fail delivers a terminal error to the monitor for key.
func (fp *FakePeripheral) Fail(key string, err error) error {
	fp.mu.Lock()
	m, ok := fp.monitors[key]
	fp.mu.Unlock()
	if !ok {
		return errors.New("no monitor for " + key)
	}
	m.handler(nil, &device.MonitorError{ServiceUUID: m.char.ServiceUUID, CharacteristicUUID: m.char.UUID, Err: err})
	return nil
}

func (fp *FakePeripheral) failAll(err error) {
	fp.mu.Lock()
	monitors := make([]*fakeMonitor, 0, len(fp.monitors))
	for _, m := range fp.monitors {
		monitors = append(monitors, m)
	}
	fp.mu.Unlock()
	for _, m := range monitors {
		m.handler(nil, &device.MonitorError{ServiceUUID: m.char.ServiceUUID, CharacteristicUUID: m.char.UUID, Err: err})
	}
}

var (
	_ device.Provider   = (*FakeProvider)(nil)
	_ device.Peripheral = (*FakePeripheral)(nil)
)
