// Package notify turns monitored characteristic values into user-visible alerts.
package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Policy selects how values that arrive while an alert is showing are kept.
type Policy string

const (
	// PolicyLatest keeps a single pending value; a newer value replaces it.
	PolicyLatest Policy = "latest"
	// PolicyQueue keeps a bounded FIFO; when full the oldest value is dropped.
	PolicyQueue Policy = "queue"
)

// ParsePolicy validates a policy name. The empty string selects PolicyLatest.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyLatest:
		return PolicyLatest, nil
	case PolicyQueue:
		return PolicyQueue, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (expected %q or %q)", s, PolicyLatest, PolicyQueue)
	}
}

// Alerter shows one value to the user and returns once it was dismissed.
type Alerter interface {
	Alert(ctx context.Context, value string) error
}

// AlerterFunc adapts a function to the Alerter interface.
type AlerterFunc func(ctx context.Context, value string) error

func (f AlerterFunc) Alert(ctx context.Context, value string) error { return f(ctx, value) }

// Options configures a Surface.
type Options struct {
	Policy    Policy `default:"latest"`
	QueueSize uint32 `default:"16"`
}

// Metrics counts values flowing through a Surface.
type Metrics struct {
	Published    int64
	Shown        int64
	Dropped      int64
	DecodeErrors int64
}

// Surface holds decoded values until the alerter shows them.
type Surface struct {
	alerter Alerter
	policy  Policy
	logger  *logrus.Logger

	mu      sync.Mutex
	pending *string

	queue  mpmc.RichOverlappedRingBuffer[string]
	signal chan struct{}

	metrics Metrics
}

// New creates a surface. opts may be nil.
func New(alerter Alerter, opts *Options, logger *logrus.Logger) *Surface {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.QueueSize == 0 {
		o.QueueSize = 16
	}

	s := &Surface{
		alerter: alerter,
		policy:  o.Policy,
		logger:  logger,
		signal:  make(chan struct{}, 1),
	}
	if s.policy == PolicyQueue {
		s.queue = mpmc.NewOverlappedRingBuffer[string](o.QueueSize)
	}
	return s
}

// Policy returns the active policy.
func (s *Surface) Policy() Policy {
	return s.policy
}

// Publish decodes a base64 payload and stores it for display. Undecodable payloads
// are logged and dropped; Publish then returns false.
func (s *Surface) Publish(encoded string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		atomic.AddInt64(&s.metrics.DecodeErrors, 1)
		s.logger.WithFields(logrus.Fields{
			"payload": encoded,
			"error":   err,
		}).Warn("Dropping undecodable value")
		return false
	}
	s.Push(string(raw))
	return true
}

// Push stores an already decoded value.
func (s *Surface) Push(value string) {
	atomic.AddInt64(&s.metrics.Published, 1)

	switch s.policy {
	case PolicyQueue:
		overwrites, err := s.queue.EnqueueM(value)
		if err != nil {
			atomic.AddInt64(&s.metrics.Dropped, 1)
			s.logger.WithField("error", err).Warn("Failed to queue value")
			return
		}
		if overwrites > 0 {
			atomic.AddInt64(&s.metrics.Dropped, int64(overwrites))
		}
	default:
		s.mu.Lock()
		if s.pending != nil {
			atomic.AddInt64(&s.metrics.Dropped, 1)
		}
		s.pending = &value
		s.mu.Unlock()
	}

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Next takes the next pending value without blocking.
func (s *Surface) Next() (string, bool) {
	if s.policy == PolicyQueue {
		if s.queue.IsEmpty() {
			return "", false
		}
		v, err := s.queue.Dequeue()
		if err != nil {
			return "", false
		}
		return v, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	v := *s.pending
	s.pending = nil
	return v, true
}

// Run shows pending values one at a time until ctx is cancelled. Alert errors are
// logged and the value is discarded.
func (s *Surface) Run(ctx context.Context) error {
	for {
		for {
			v, ok := s.Next()
			if !ok {
				break
			}
			if err := s.alerter.Alert(ctx, v); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.WithField("error", err).Warn("Alert failed")
				continue
			}
			atomic.AddInt64(&s.metrics.Shown, 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.signal:
		}
	}
}

// GetMetrics returns a snapshot of the counters.
func (s *Surface) GetMetrics() Metrics {
	return Metrics{
		Published:    atomic.LoadInt64(&s.metrics.Published),
		Shown:        atomic.LoadInt64(&s.metrics.Shown),
		Dropped:      atomic.LoadInt64(&s.metrics.Dropped),
		DecodeErrors: atomic.LoadInt64(&s.metrics.DecodeErrors),
	}
}
