package goble

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
)

type monitor struct {
	char    device.Characteristic
	handler device.MonitorHandler
	stopped atomic.Bool
	once    sync.Once
}

// peripheral is a live go-ble connection to one device.
type peripheral struct {
	id     string
	info   device.DiscoveredDevice
	client Client
	logger *logrus.Logger

	mu       sync.Mutex
	profile  *ble.Profile
	monitors map[uint64]*monitor
	nextID   uint64

	done      chan struct{}
	closeOnce sync.Once
}

func newPeripheral(id string, info device.DiscoveredDevice, client Client, logger *logrus.Logger) *peripheral {
	return &peripheral{
		id:       id,
		info:     info,
		client:   client,
		logger:   logger,
		monitors: make(map[uint64]*monitor),
		done:     make(chan struct{}),
	}
}

func (c *peripheral) Device() device.DiscoveredDevice {
	return c.info
}

// DiscoverAllServicesAndCharacteristics runs a forced profile discovery. go-ble's
// DiscoverProfile does not take a context, so ctx only bounds the wait.
func (c *peripheral) DiscoverAllServicesAndCharacteristics(ctx context.Context) ([]device.Service, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	ch := make(chan result, 1)

	groutine.Go(ctx, "ble-discovery", c.logger, func(context.Context) {
		prof, err := c.client.DiscoverProfile(true)
		ch <- result{profile: prof, err: err}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, device.ErrNotConnected
	case r := <-ch:
		if r.err != nil {
			c.logger.WithFields(logrus.Fields{
				"address": c.id,
				"error":   r.err,
			}).Error("Failed to discover BLE profile")
			return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(r.err))
		}

		c.mu.Lock()
		c.profile = r.profile
		c.mu.Unlock()

		services := convertProfile(r.profile)
		totalChars := 0
		for _, s := range services {
			totalChars += len(s.Characteristics)
		}
		c.logger.WithFields(logrus.Fields{
			"address":         c.id,
			"services":        len(services),
			"characteristics": totalChars,
		}).Info("BLE profile discovered")
		return services, nil
	}
}

// Monitor enables notifications (or indications when notify is unsupported) on char.
// Payloads reach handler base64 encoded.
func (c *peripheral) Monitor(char device.Characteristic, handler device.MonitorHandler) (device.Subscription, error) {
	monitorErr := func(err error) error {
		return &device.MonitorError{ServiceUUID: char.ServiceUUID, CharacteristicUUID: char.UUID, Err: err}
	}

	select {
	case <-c.done:
		return nil, monitorErr(device.ErrNotConnected)
	default:
	}

	c.mu.Lock()
	prof := c.profile
	c.mu.Unlock()
	if prof == nil {
		return nil, monitorErr(device.ErrNotInitialized)
	}

	bc := findCharacteristic(prof, char)
	if bc == nil {
		return nil, monitorErr(&device.NotFoundError{Resource: "characteristic", IDs: []string{char.ServiceUUID, char.UUID}})
	}
	canNotify := bc.Property&ble.CharNotify != 0
	canIndicate := bc.Property&ble.CharIndicate != 0
	if !canNotify && !canIndicate {
		return nil, monitorErr(fmt.Errorf("characteristic does not support notifications (properties: %s)", PropertyString(bc.Property)))
	}
	ind := !canNotify

	m := &monitor{char: char, handler: handler}
	c.mu.Lock()
	c.nextID++
	key := c.nextID
	c.monitors[key] = m
	c.mu.Unlock()

	err := c.client.Subscribe(bc, ind, func(data []byte) {
		if m.stopped.Load() {
			return
		}
		handler(&device.Value{
			ServiceUUID:        char.ServiceUUID,
			CharacteristicUUID: char.UUID,
			Base64:             base64.StdEncoding.EncodeToString(data),
		}, nil)
	})
	if err != nil {
		c.unregister(key)
		return nil, monitorErr(NormalizeError(err))
	}

	c.logger.WithFields(logrus.Fields{
		"address":        c.id,
		"characteristic": char.Key(),
		"indicate":       ind,
	}).Debug("Monitoring characteristic")

	return device.SubscriptionFunc(func() {
		m.once.Do(func() {
			m.stopped.Store(true)
			c.unregister(key)
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.client.Unsubscribe(bc, ind); err != nil {
				c.logger.WithFields(logrus.Fields{
					"characteristic": char.Key(),
					"error":          err,
				}).Warn("Failed to unsubscribe from characteristic")
			}
		})
	}), nil
}

func (c *peripheral) unregister(key uint64) {
	c.mu.Lock()
	delete(c.monitors, key)
	c.mu.Unlock()
}

// close marks the link as gone and terminates every active monitor with an error.
// It reports false when the peripheral was already closed.
func (c *peripheral) close(cause error) bool {
	closed := false
	c.closeOnce.Do(func() {
		closed = true
		close(c.done)
	})
	if !closed {
		return false
	}

	if cause == nil {
		cause = device.ErrNotConnected
	}

	c.mu.Lock()
	monitors := make([]*monitor, 0, len(c.monitors))
	for _, m := range c.monitors {
		monitors = append(monitors, m)
	}
	c.monitors = make(map[uint64]*monitor)
	c.mu.Unlock()

	for _, m := range monitors {
		m.once.Do(func() {
			m.stopped.Store(true)
			m.handler(nil, &device.MonitorError{
				ServiceUUID:        m.char.ServiceUUID,
				CharacteristicUUID: m.char.UUID,
				Err:                cause,
			})
		})
	}
	return true
}
