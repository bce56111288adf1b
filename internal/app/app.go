// Package app wires the provider, permission gate, scanner, registry, connection
// manager and notification surface into one lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/srg/blemon/internal/config"
	"github.com/srg/blemon/internal/connection"
	"github.com/srg/blemon/internal/device"
	goble "github.com/srg/blemon/internal/device/go-ble"
	"github.com/srg/blemon/internal/groutine"
	"github.com/srg/blemon/internal/notify"
	"github.com/srg/blemon/internal/permission"
	"github.com/srg/blemon/internal/registry"
	"github.com/srg/blemon/internal/ringchan"
	"github.com/srg/blemon/internal/scanner"
)

// EventKind discriminates Event.
type EventKind int

const (
	EventDevice EventKind = iota
	EventScanError
	EventRadio
)

// Event is a discovery-side notification for views that stream rather than
// observe the registry.
type Event struct {
	Kind    EventKind
	Device  device.DiscoveredDevice
	ScanErr *device.ScanError
	Radio   device.RadioState
}

const eventBufferSize = 256

// Options configures New. Only Config and Alerter are required.
type Options struct {
	Config   *config.Config
	Provider device.Provider     // default: go-ble provider from Config
	Checker  permission.Checker  // default: Config.Checker(Prompter)
	Prompter permission.Prompter // backs interactive permission requests
	Alerter  notify.Alerter
	Logger   *logrus.Logger
}

// App owns the provider handle and every component built on it.
type App struct {
	provider device.Provider
	store    *registry.Store
	gate     *permission.Gate
	scanner  *scanner.Scanner
	manager  *connection.Manager
	surface  *notify.Surface
	events   *ringchan.RingChannel[Event]
	logger   *logrus.Logger

	mu       sync.Mutex
	radio    device.RadioState
	stateSub device.Subscription
	cancel   context.CancelFunc
}

// New constructs the application. Nothing touches the radio until Start.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Alerter == nil {
		return nil, errors.New("app: alerter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	cfg := opts.Config

	provider := opts.Provider
	if provider == nil {
		provider = goble.NewProvider(cfg.ProviderOptions(), logger)
	}
	checker := opts.Checker
	if checker == nil {
		checker = cfg.Checker(opts.Prompter)
	}

	a := &App{
		provider: provider,
		store:    registry.NewStore(logger),
		gate:     permission.NewGate(cfg.HostPlatform(), checker, logger),
		scanner:  scanner.New(provider, cfg.ScannerOptions(), logger),
		surface:  notify.New(opts.Alerter, cfg.NotifyOptions(), logger),
		events:   ringchan.New[Event](eventBufferSize),
		logger:   logger,
		radio:    device.RadioUnknown,
	}
	a.manager = connection.New(provider, a.store, a.scanner, a.surface,
		func(ctx context.Context) { a.StartDiscovery(ctx) },
		cfg.ConnectionOptions(), logger)
	return a, nil
}

func (a *App) Store() *registry.Store { return a.store }

func (a *App) Manager() *connection.Manager { return a.manager }

func (a *App) Scanner() *scanner.Scanner { return a.scanner }

func (a *App) Surface() *notify.Surface { return a.surface }

// Events streams discovery events. Slow readers lose the oldest events.
func (a *App) Events() *ringchan.RingChannel[Event] { return a.events }

// Radio returns the last radio state reported by the provider.
func (a *App) Radio() device.RadioState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.radio
}

// Start runs the notification surface and follows the radio state: PoweredOn runs
// the permission gate and starts scanning, any other state stops the scan.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return fmt.Errorf("app already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	groutine.Go(ctx, "notify-surface", a.logger, func(ctx context.Context) {
		if err := a.surface.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithField("error", err).Error("Notification surface stopped")
		}
	})

	sub := a.provider.OnStateChange(func(st device.RadioState) {
		a.onRadioState(ctx, st)
	}, true)

	a.mu.Lock()
	a.stateSub = sub
	a.mu.Unlock()
	return nil
}

func (a *App) onRadioState(ctx context.Context, st device.RadioState) {
	a.mu.Lock()
	a.radio = st
	a.mu.Unlock()

	a.logger.WithField("state", st).Info("Radio state")
	a.events.ForceSend(Event{Kind: EventRadio, Radio: st})

	if st != device.RadioPoweredOn {
		a.scanner.Stop()
		return
	}
	if a.manager.IsConnected() {
		return
	}
	groutine.Go(ctx, "start-discovery", a.logger, func(ctx context.Context) {
		a.StartDiscovery(ctx)
	})
}

// StartDiscovery runs the permission gate and, when granted, starts the scanner.
// A denial aborts silently; it is only logged.
func (a *App) StartDiscovery(ctx context.Context) bool {
	granted, err := a.gate.EnsurePermission(ctx)
	if !granted {
		a.logger.WithField("error", err).Warn("Scan not started: permission not granted")
		return false
	}
	return a.scanner.Start(a.onDevice, a.onScanError)
}

func (a *App) onDevice(d device.DiscoveredDevice) {
	a.store.Dispatch(registry.Add{Device: d})
	a.events.ForceSend(Event{Kind: EventDevice, Device: d})
}

func (a *App) onScanError(err *device.ScanError) {
	a.events.ForceSend(Event{Kind: EventScanError, ScanErr: err})
}

// Clear empties the discovered-device list.
func (a *App) Clear() {
	a.store.Dispatch(registry.Clear{})
}

// Connect connects to the device with id. Unknown ids are dialled directly.
func (a *App) Connect(ctx context.Context, id string) (*connection.Session, error) {
	d, ok := a.store.State().Device(id)
	if !ok {
		d = device.DiscoveredDevice{ID: id}
	}
	return a.manager.Connect(ctx, d)
}

// Disconnect ends the connection with the device recorded as connected. Without
// one it does nothing.
func (a *App) Disconnect(ctx context.Context) error {
	d, ok := a.store.State().Connected()
	if !ok {
		return nil
	}
	return a.manager.Disconnect(ctx, d)
}

// Close stops scanning, ends the session and releases the provider.
func (a *App) Close() error {
	a.mu.Lock()
	sub := a.stateSub
	a.stateSub = nil
	cancel := a.cancel
	a.mu.Unlock()

	if sub != nil {
		sub.Remove()
	}
	if cancel != nil {
		cancel()
	}
	a.scanner.Stop()
	a.manager.Close()
	return a.provider.Close()
}
