package scanner

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blemon/internal/device"
	"github.com/srg/blemon/internal/groutine"
)

// Options narrows which advertisements reach the device callback. The zero value
// forwards everything.
type Options struct {
	ServiceUUIDs []string
	AllowList    []string
	BlockList    []string
}

// Scanner runs one provider scan at a time in the background.
type Scanner struct {
	provider device.Provider
	opts     Options
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// New creates a scanner. opts may be nil.
func New(provider device.Provider, opts *Options, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scanner{provider: provider, logger: logger}
	if opts != nil {
		s.opts = *opts
	}
	return s
}

// Start begins scanning. Every advertisement, duplicates included, is passed to
// onDevice. When the provider fails, onError receives the diagnostic bundle and the
// scan stays stopped. Start while scanning is a no-op and returns false.
func (s *Scanner) Start(onDevice func(device.DiscoveredDevice), onError func(*device.ScanError)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.logger.Debug("Scan already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.gen++
	gen := s.gen

	s.logger.Info("Starting device scan")
	groutine.Go(ctx, "ble-scan", s.logger, func(ctx context.Context) {
		err := s.provider.Scan(ctx, func(adv device.Advertisement) {
			if ctx.Err() != nil || !s.shouldInclude(adv) {
				return
			}
			onDevice(device.DeviceFromAdvertisement(adv))
		})
		stopped := ctx.Err() != nil

		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel()

		if err == nil || stopped {
			return
		}

		scanErr := device.NewScanError(err, groutine.Describe(ctx))
		s.logger.WithFields(logrus.Fields{
			"device_error_code": scanErr.DeviceErrorCode,
			"att_error_code":    scanErr.AttErrorCode,
			"error_code":        scanErr.ErrorCode,
			"message":           scanErr.Message,
			"reason":            scanErr.Reason,
			"stack":             scanErr.Stack,
		}).Error("Scan failed")
		if onError != nil {
			onError(scanErr)
		}
	})
	return true
}

// Stop cancels the running scan. It is safe to call when no scan runs.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.gen++
	s.mu.Unlock()

	if cancel != nil {
		s.logger.Info("Stopping device scan")
		cancel()
	}
}

// Scanning reports whether a scan is running.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// shouldInclude applies the allow/block/service filters
func (s *Scanner) shouldInclude(adv device.Advertisement) bool {
	addr := adv.Addr()

	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(s.opts.AllowList) > 0 {
		allowed := false
		for _, a := range s.opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(s.opts.ServiceUUIDs) > 0 {
		for _, required := range s.opts.ServiceUUIDs {
			for _, advUUID := range adv.Services() {
				if device.NormalizeUUID(required) == device.NormalizeUUID(advUUID) {
					return true
				}
			}
		}
		return false
	}

	return true
}
