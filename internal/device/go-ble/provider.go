package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
)

// Options configures the host device created by the provider.
type Options struct {
	HCIDevice   int           // linux only: hciN socket index
	DialTimeout time.Duration // 0 means no dial timeout
}

// Device is the subset of a go-ble host device the provider drives.
type Device interface {
	Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error
	Dial(ctx context.Context, id string) (Client, error)
	Stop() error
}

// Client is the subset of ble.Client used by a connected peripheral.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// DeviceFactory creates the host Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(opts Options) (Device, error) {
	return newBLEDevice(opts)
}

// bleDevice adapts ble.Device to the Device interface
type bleDevice struct {
	dev ble.Device
}

func wrapDevice(dev ble.Device) Device {
	return &bleDevice{dev: dev}
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (d *bleDevice) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	return d.dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	})
}

func (d *bleDevice) Dial(ctx context.Context, id string) (Client, error) {
	client, err := d.dev.Dial(ctx, ble.NewAddr(id))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (d *bleDevice) Stop() error {
	return d.dev.Stop()
}

// Provider implements device.Provider on top of go-ble.
// The host device is created lazily on first use; its creation outcome drives the
// reported radio state.
type Provider struct {
	opts   Options
	logger *logrus.Logger

	devMu sync.Mutex
	dev   Device

	stateMu        sync.Mutex
	state          device.RadioState
	stateListeners map[uint64]func(device.RadioState)

	discMu              sync.Mutex
	disconnectListeners map[string]map[uint64]func(error)

	nextID atomic.Uint64

	clients *hashmap.Map[string, *peripheral]
	seen    *hashmap.Map[string, device.DiscoveredDevice]
}

// NewProvider creates a go-ble backed provider. No radio access happens until the
// first Scan, Connect or OnStateChange(emitCurrent=true).
func NewProvider(opts Options, logger *logrus.Logger) *Provider {
	if logger == nil {
		logger = logrus.New()
	}
	return &Provider{
		opts:                opts,
		logger:              logger,
		state:               device.RadioUnknown,
		stateListeners:      make(map[uint64]func(device.RadioState)),
		disconnectListeners: make(map[string]map[uint64]func(error)),
		clients:             hashmap.New[string, *peripheral](),
		seen:                hashmap.New[string, device.DiscoveredDevice](),
	}
}

func (p *Provider) ensureDevice() (Device, error) {
	p.devMu.Lock()
	if p.dev != nil {
		dev := p.dev
		p.devMu.Unlock()
		return dev, nil
	}
	dev, err := DeviceFactory(p.opts)
	if err == nil {
		p.dev = dev
	}
	p.devMu.Unlock()

	err = NormalizeError(err)
	p.setState(radioStateFor(err))
	if err != nil {
		p.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	p.logger.Debug("BLE device created")
	return dev, nil
}

// State returns the last known radio state.
func (p *Provider) State() device.RadioState {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Provider) setState(s device.RadioState) {
	p.stateMu.Lock()
	if p.state == s {
		p.stateMu.Unlock()
		return
	}
	p.state = s
	listeners := make([]func(device.RadioState), 0, len(p.stateListeners))
	for _, fn := range p.stateListeners {
		listeners = append(listeners, fn)
	}
	p.stateMu.Unlock()

	p.logger.WithField("state", s).Info("Radio state changed")
	for _, fn := range listeners {
		fn(s)
	}
}

// OnStateChange registers a radio state listener. With emitCurrent the listener is
// called once, synchronously, with the current state before OnStateChange returns.
func (p *Provider) OnStateChange(fn func(device.RadioState), emitCurrent bool) device.Subscription {
	if emitCurrent && p.State() == device.RadioUnknown {
		// Resolves the state by touching the radio.
		_, _ = p.ensureDevice()
	}

	id := p.nextID.Add(1)
	p.stateMu.Lock()
	p.stateListeners[id] = fn
	p.stateMu.Unlock()

	if emitCurrent {
		fn(p.State())
	}

	var once sync.Once
	return device.SubscriptionFunc(func() {
		once.Do(func() {
			p.stateMu.Lock()
			delete(p.stateListeners, id)
			p.stateMu.Unlock()
		})
	})
}

// Scan runs an unfiltered scan with duplicates until ctx is cancelled.
// Cancellation is not an error.
func (p *Provider) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := p.ensureDevice()
	if err != nil {
		return err
	}

	p.logger.Info("Starting BLE scan...")
	err = dev.Scan(ctx, true, func(adv device.Advertisement) {
		d := device.DeviceFromAdvertisement(adv)
		p.seen.Set(d.ID, d)
		handler(adv)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NormalizeError(err)
	}

	p.logger.WithField("device_count", p.seen.Len()).Info("BLE scan stopped")
	return nil
}

// Connect dials id and registers the resulting client.
func (p *Provider) Connect(ctx context.Context, id string) (device.Peripheral, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if _, ok := p.clients.Get(id); ok {
		p.logger.WithField("address", id).Warn("Connection attempt while already connected")
		return nil, device.ErrAlreadyConnected
	}

	dev, err := p.ensureDevice()
	if err != nil {
		return nil, err
	}

	connCtx := ctx
	if p.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, p.opts.DialTimeout)
		defer cancel()
	}

	p.logger.WithField("address", id).Debug("Dialing BLE device...")
	client, err := dev.Dial(connCtx, id)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"address": id,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", id, NormalizeError(err))
	}

	info, ok := p.seen.Get(id)
	if !ok {
		info = device.DiscoveredDevice{ID: id}
	}

	per := newPeripheral(id, info, client, p.logger)
	if _, loaded := p.clients.GetOrInsert(id, per); loaded {
		_ = client.CancelConnection()
		return nil, device.ErrAlreadyConnected
	}
	p.watch(per)

	p.logger.WithField("address", id).Info("BLE device connected")
	return per, nil
}

// watch fires the disconnect listeners when the stack reports the link as gone.
func (p *Provider) watch(per *peripheral) {
	dc, ok := per.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		p.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	groutine.Go(context.Background(), "ble-connection-monitor", p.logger, func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			p.logger.WithField("address", per.id).Warn("BLE stack reported disconnection")
			p.handleDisconnect(per, device.ErrNotConnected)
		case <-per.done:
		}
	})
}

// handleDisconnect tears down per exactly once and notifies the listeners for its id.
func (p *Provider) handleDisconnect(per *peripheral, cause error) {
	if !per.close(cause) {
		return
	}
	if cur, ok := p.clients.Get(per.id); ok && cur == per {
		p.clients.Del(per.id)
	}

	p.discMu.Lock()
	listeners := make([]func(error), 0, len(p.disconnectListeners[per.id]))
	for _, fn := range p.disconnectListeners[per.id] {
		listeners = append(listeners, fn)
	}
	p.discMu.Unlock()

	for _, fn := range listeners {
		fn(cause)
	}
}

// IsConnected reports whether a client for id is registered.
func (p *Provider) IsConnected(_ context.Context, id string) (bool, error) {
	_, ok := p.clients.Get(id)
	return ok, nil
}

// CancelConnection closes the link to id. Disconnect listeners fire with a nil error.
func (p *Provider) CancelConnection(_ context.Context, id string) error {
	per, ok := p.clients.Get(id)
	if !ok {
		return device.ErrNotConnected
	}

	p.logger.WithField("address", id).Info("Disconnecting BLE device...")
	err := per.client.CancelConnection()
	p.handleDisconnect(per, nil)
	if err != nil {
		p.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	return nil
}

// OnDeviceDisconnected registers fn for link drops of id.
func (p *Provider) OnDeviceDisconnected(id string, fn func(err error)) device.Subscription {
	key := p.nextID.Add(1)

	p.discMu.Lock()
	if p.disconnectListeners[id] == nil {
		p.disconnectListeners[id] = make(map[uint64]func(error))
	}
	p.disconnectListeners[id][key] = fn
	p.discMu.Unlock()

	var once sync.Once
	return device.SubscriptionFunc(func() {
		once.Do(func() {
			p.discMu.Lock()
			defer p.discMu.Unlock()
			delete(p.disconnectListeners[id], key)
			if len(p.disconnectListeners[id]) == 0 {
				delete(p.disconnectListeners, id)
			}
		})
	})
}

// Close disconnects every client and stops the host device.
func (p *Provider) Close() error {
	var ids []string
	p.clients.Range(func(id string, _ *peripheral) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		if err := p.CancelConnection(context.Background(), id); err != nil {
			p.logger.WithFields(logrus.Fields{
				"address": id,
				"error":   err,
			}).Warn("Failed to cancel connection on close")
		}
	}

	p.devMu.Lock()
	dev := p.dev
	p.dev = nil
	p.devMu.Unlock()
	if dev == nil {
		return nil
	}
	return NormalizeError(dev.Stop())
}

var _ device.Provider = (*Provider)(nil)
