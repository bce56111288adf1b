// Package connection drives the connect -> discover -> monitor lifecycle of the
// single peripheral session.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/registry"
)

// State is the lifecycle state of the manager.
type State string

const (
	StateIdle             State = "Idle"
	StateConnecting       State = "Connecting"
	StateServiceDiscovery State = "ServiceDiscovery"
	StateMonitoring       State = "Monitoring"
	StateDisconnected     State = "Disconnected"
)

// Dispatcher receives registry actions. *registry.Store implements it.
type Dispatcher interface {
	Dispatch(a registry.Action) *registry.State
}

// ScanStopper is the part of the scanner the manager controls.
type ScanStopper interface {
	Stop()
}

// ValueSink receives base64 payloads from monitored characteristics.
type ValueSink interface {
	Publish(encoded string) bool
}

// ResumeFunc restarts discovery after a session ends, normally by re-running the
// permission gate and then the scanner.
type ResumeFunc func(ctx context.Context)

// Options tunes the manager. Zero values mean no timeout.
type Options struct {
	ConnectTimeout time.Duration
}

// Session is the live connection to one peripheral.
type Session struct {
	ID       ulid.ULID
	Device   device.DiscoveredDevice
	Services []device.Service

	peripheral    device.Peripheral
	monitors      *hashmap.Map[string, device.Subscription]
	disconnectSub device.Subscription
	ended         bool
}

// Monitored returns the keys of the characteristics with an active subscription.
func (s *Session) Monitored() []string {
	var keys []string
	s.monitors.Range(func(k string, _ device.Subscription) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

type attempt struct {
	seq     uint64
	id      string
	session *Session
	cancel  context.CancelFunc

	done   chan struct{}
	result *Session
	err    error
}

func (at *attempt) finish(s *Session, err error) {
	at.result, at.err = s, err
	close(at.done)
}

// wait returns the outcome of the attempt, or ctx.Err() if ctx ends first.
func (at *attempt) wait(ctx context.Context) (*Session, error) {
	select {
	case <-at.done:
		return at.result, at.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Manager owns at most one Session.
type Manager struct {
	provider device.Provider
	store    Dispatcher
	scanner  ScanStopper
	sink     ValueSink
	resume   ResumeFunc
	opts     Options
	logger   *logrus.Logger

	mu        sync.Mutex
	state     State
	session   *Session
	attempt   *attempt
	seq       uint64
	connected bool
}

// New creates a manager. sink, scanner and resume may be nil.
func New(provider device.Provider, store Dispatcher, scanner ScanStopper, sink ValueSink, resume ResumeFunc, opts *Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	m := &Manager{
		provider: provider,
		store:    store,
		scanner:  scanner,
		sink:     sink,
		resume:   resume,
		logger:   logger,
		state:    StateIdle,
	}
	if opts != nil {
		m.opts = *opts
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether a session is in the Monitoring state.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Session returns the active session or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect connects to d, discovers its services and monitors every readable and
// notifiable characteristic. A Connect issued while an attempt for another device
// is in flight cancels that attempt; one for the same device waits for it and
// returns its outcome. Connect while a session is active returns
// device.ErrAlreadyConnected. Failures return a *device.ConnectError and leave the
// manager Idle; nothing is retried.
func (m *Manager) Connect(ctx context.Context, d device.DiscoveredDevice) (*Session, error) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		m.logger.WithField("address", d.ID).Warn("Connect requested while a session is active")
		return nil, device.ErrAlreadyConnected
	}
	if prev := m.attempt; prev != nil {
		if prev.id == d.ID {
			m.mu.Unlock()
			m.logger.WithField("address", d.ID).Info("Joining in-flight connection attempt")
			return prev.wait(ctx)
		}
		m.logger.WithField("address", prev.id).Info("Superseding in-flight connection attempt")
		prev.cancel()
	}

	var actx context.Context
	var cancel context.CancelFunc
	if m.opts.ConnectTimeout > 0 {
		actx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
	} else {
		actx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	m.seq++
	s := &Session{
		ID:       ulid.Make(),
		Device:   d,
		monitors: hashmap.New[string, device.Subscription](),
	}
	at := &attempt{seq: m.seq, id: d.ID, session: s, cancel: cancel, done: make(chan struct{})}
	m.attempt = at
	m.state = StateConnecting
	m.mu.Unlock()

	log := m.logger.WithFields(logrus.Fields{
		"address": d.ID,
		"session": s.ID.String(),
	})
	log.Info("Connecting to device")

	session, err := m.connect(actx, at, d, log)
	at.finish(session, err)
	return session, err
}

func (m *Manager) connect(actx context.Context, at *attempt, d device.DiscoveredDevice, log *logrus.Entry) (*Session, error) {
	s := at.session
	m.stopScan()

	per, err := m.provider.Connect(actx, d.ID)
	if err != nil {
		return nil, m.fail(at, device.StageConnect, err, log)
	}
	s.peripheral = per
	s.Device = per.Device().Enrich(d)
	s.disconnectSub = m.provider.OnDeviceDisconnected(d.ID, func(cause error) {
		m.onPeripheralDisconnect(s, cause)
	})

	if !m.advance(at, StateServiceDiscovery) {
		return nil, m.fail(at, device.StageConnect, context.Canceled, log)
	}

	services, err := per.DiscoverAllServicesAndCharacteristics(actx)
	if err != nil {
		return nil, m.fail(at, device.StageDiscovery, err, log)
	}
	s.Services = services

	m.mu.Lock()
	if m.attempt != at || s.ended {
		m.mu.Unlock()
		return nil, m.fail(at, device.StageDiscovery, context.Canceled, log)
	}
	m.attempt = nil
	m.session = s
	m.state = StateMonitoring
	m.connected = true
	m.mu.Unlock()

	log.Info("Device connected")
	m.store.Dispatch(registry.Connected{Device: s.Device})
	m.stopScan()

	for _, svc := range services {
		for _, char := range svc.Characteristics {
			if char.IsReadable && char.IsNotifiable {
				m.monitor(s, char, log)
			}
		}
	}

	return s, nil
}

// advance moves an attempt to the next state unless it was superseded.
func (m *Manager) advance(at *attempt, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempt != at || at.session.ended {
		return false
	}
	m.state = to
	return true
}

// fail releases everything an attempt acquired and returns the manager to Idle.
func (m *Manager) fail(at *attempt, stage device.ConnectStage, err error, log *logrus.Entry) error {
	s := at.session

	m.mu.Lock()
	current := m.attempt == at
	if current {
		m.attempt = nil
		m.state = StateIdle
	}
	s.ended = true
	m.mu.Unlock()

	if s.disconnectSub != nil {
		s.disconnectSub.Remove()
	}
	m.sweep(s)
	if s.peripheral != nil {
		if cerr := m.provider.CancelConnection(context.Background(), s.Device.ID); cerr != nil && !errors.Is(cerr, device.ErrNotConnected) {
			log.WithField("error", cerr).Warn("Failed to release connection after failed attempt")
		}
	}

	connErr := &device.ConnectError{Stage: stage, DeviceID: s.Device.ID, Err: err}
	log.WithFields(logrus.Fields{
		"stage":      stage,
		"superseded": !current,
		"error":      err,
	}).Error("Connection attempt failed")
	return connErr
}

func (m *Manager) monitor(s *Session, char device.Characteristic, log *logrus.Entry) {
	key := char.Key()
	sub, err := s.peripheral.Monitor(char, func(v *device.Value, err error) {
		if err != nil {
			log.WithFields(logrus.Fields{
				"characteristic": key,
				"error":          err,
			}).Warn("Characteristic monitor failed")
			m.release(s, key)
			return
		}
		if m.sink != nil {
			m.sink.Publish(v.Base64)
		}
	})
	if err != nil {
		log.WithFields(logrus.Fields{
			"characteristic": key,
			"error":          err,
		}).Warn("Failed to monitor characteristic")
		return
	}

	m.mu.Lock()
	ended := s.ended
	if !ended {
		s.monitors.Set(key, sub)
	}
	m.mu.Unlock()
	if ended {
		sub.Remove()
		return
	}
	log.WithField("characteristic", key).Debug("Characteristic monitored")
}

// release removes a single monitor subscription.
func (m *Manager) release(s *Session, key string) {
	sub, ok := s.monitors.Get(key)
	if !ok {
		return
	}
	if s.monitors.Del(key) {
		sub.Remove()
	}
}

// sweep removes every monitor subscription of s.
func (m *Manager) sweep(s *Session) {
	var keys []string
	s.monitors.Range(func(k string, _ device.Subscription) bool {
		keys = append(keys, k)
		return true
	})
	for _, k := range keys {
		m.release(s, k)
	}
}

// onPeripheralDisconnect handles a link drop. It runs at most once per session.
func (m *Manager) onPeripheralDisconnect(s *Session, cause error) {
	m.mu.Lock()
	if s.ended {
		m.mu.Unlock()
		return
	}
	if m.session != s {
		// Still connecting: abort the attempt, its failure path cleans up.
		if m.attempt != nil && m.attempt.session == s {
			s.ended = true
			m.attempt.cancel()
		}
		m.mu.Unlock()
		return
	}
	s.ended = true
	m.session = nil
	m.state = StateDisconnected
	m.connected = false
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"address": s.Device.ID,
		"session": s.ID.String(),
		"cause":   cause,
	}).Warn("Device disconnected")

	s.disconnectSub.Remove()
	m.sweep(s)
	m.store.Dispatch(registry.Disconnect{})
	m.resumeDiscovery()
}

// Disconnect closes the session with d at the user's request. When the provider
// reports d as not connected nothing happens and no action is dispatched.
func (m *Manager) Disconnect(ctx context.Context, d device.DiscoveredDevice) error {
	connected, err := m.provider.IsConnected(ctx, d.ID)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"address": d.ID,
			"error":   err,
		}).Error("Failed to query connection status")
		return err
	}
	if !connected {
		m.logger.WithField("address", d.ID).Debug("Disconnect ignored, device not connected")
		return nil
	}

	m.mu.Lock()
	s := m.session
	if s != nil && s.Device.ID == d.ID {
		s.ended = true
		m.session = nil
		m.connected = false
		m.state = StateDisconnected
	} else {
		s = nil
		if m.attempt != nil && m.attempt.id == d.ID {
			m.attempt.cancel()
		}
	}
	m.mu.Unlock()

	if s != nil {
		// The session no longer listens for the drop it is about to cause.
		s.disconnectSub.Remove()
		m.sweep(s)
	}

	log := m.logger.WithField("address", d.ID)
	log.Info("Disconnecting device")
	if err := m.provider.CancelConnection(ctx, d.ID); err != nil && !errors.Is(err, device.ErrNotConnected) {
		log.WithField("error", err).Warn("Device disconnected with errors")
	}

	m.store.Dispatch(registry.Disconnect{})
	m.resumeDiscovery()
	return nil
}

// Close cancels an in-flight attempt and ends the active session without resuming
// discovery.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.attempt != nil {
		m.attempt.cancel()
	}
	s := m.session
	if s != nil {
		s.ended = true
		m.session = nil
		m.connected = false
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.disconnectSub.Remove()
	m.sweep(s)
	if err := m.provider.CancelConnection(context.Background(), s.Device.ID); err != nil && !errors.Is(err, device.ErrNotConnected) {
		m.logger.WithField("error", err).Warn("Failed to disconnect on close")
	}
	m.store.Dispatch(registry.Disconnect{})
}

func (m *Manager) stopScan() {
	if m.scanner != nil {
		m.scanner.Stop()
	}
}

func (m *Manager) resumeDiscovery() {
	if m.resume == nil {
		return
	}
	groutine.Go(context.Background(), "ble-resume-discovery", m.logger, func(ctx context.Context) {
		m.resume(ctx)
	})
}
