package notify_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/srg/blemon/internal/notify"
	"github.com/srg/blemon/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu    sync.Mutex
	shown []string
	err   error
}

func (a *recordingAlerter) Alert(_ context.Context, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shown = append(a.shown, value)
	return a.err
}

func (a *recordingAlerter) Shown() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.shown...)
}

func runSurface(t *testing.T, s *notify.Surface) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Error("Run MUST return after cancellation")
		}
	})
	return cancel
}

func TestParsePolicy(t *testing.T) {
	p, err := notify.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, notify.PolicyLatest, p)

	p, err = notify.ParsePolicy("queue")
	require.NoError(t, err)
	assert.Equal(t, notify.PolicyQueue, p)

	_, err = notify.ParsePolicy("fifo")
	assert.Error(t, err)
}

func TestNew_DefaultsToLatest(t *testing.T) {
	s := notify.New(&recordingAlerter{}, nil, nil)
	assert.Equal(t, notify.PolicyLatest, s.Policy())
}

func TestPublish_DecodesBase64(t *testing.T) {
	alerter := &recordingAlerter{}
	s := notify.New(alerter, nil, nil)

	require.True(t, s.Publish("SGVsbG8="))
	runSurface(t, s)

	require.Eventually(t, func() bool { return len(alerter.Shown()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Hello"}, alerter.Shown())
	assert.Equal(t, int64(1), s.GetMetrics().Shown)
}

func TestPublish_DropsUndecodablePayload(t *testing.T) {
	logger, logs := testutils.NewCapturingLogger()
	s := notify.New(&recordingAlerter{}, nil, logger)

	assert.False(t, s.Publish("not base64!"), "invalid payload MUST be rejected")

	_, ok := s.Next()
	assert.False(t, ok, "nothing MUST be pending after a decode error")
	assert.Equal(t, int64(1), s.GetMetrics().DecodeErrors)
	assert.Contains(t, logs.String(), "Dropping undecodable value")
}

func TestLatestPolicy_LastWriteWins(t *testing.T) {
	s := notify.New(&recordingAlerter{}, &notify.Options{Policy: notify.PolicyLatest}, nil)

	s.Push("first")
	s.Push("second")
	s.Push("third")

	v, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, "third", v)

	_, ok = s.Next()
	assert.False(t, ok, "slot MUST be cleared after it was taken")
	assert.Equal(t, int64(2), s.GetMetrics().Dropped)
}

func TestQueuePolicy_KeepsOrderAndDropsOldest(t *testing.T) {
	s := notify.New(&recordingAlerter{}, &notify.Options{Policy: notify.PolicyQueue, QueueSize: 4}, nil)

	const total = 50
	for i := 1; i <= total; i++ {
		s.Push(strconv.Itoa(i))
	}

	var got []int
	for {
		v, ok := s.Next()
		if !ok {
			break
		}
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		got = append(got, n)
	}

	require.NotEmpty(t, got)
	assert.Less(t, len(got), total, "a bounded queue MUST drop values")
	assert.Equal(t, total, got[len(got)-1], "the newest value MUST survive")
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i], "values MUST come out in FIFO order")
	}
}

func TestRun_ContinuesAfterAlertError(t *testing.T) {
	alerter := &recordingAlerter{err: errors.New("screen gone")}
	s := notify.New(alerter, nil, nil)
	runSurface(t, s)

	s.Push("a")
	require.Eventually(t, func() bool { return len(alerter.Shown()) == 1 }, time.Second, 5*time.Millisecond)
	s.Push("b")
	require.Eventually(t, func() bool { return len(alerter.Shown()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), s.GetMetrics().Shown)
}

func TestRun_BlocksWhileAlertIsShowing(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 4)
	s := notify.New(notify.AlerterFunc(func(ctx context.Context, v string) error {
		started <- v
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), nil, nil)
	runSurface(t, s)

	s.Push("one")
	assert.Equal(t, "one", <-started)

	s.Push("two")
	s.Push("three")
	select {
	case v := <-started:
		t.Fatalf("second alert MUST wait for dismissal, got %q", v)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case v := <-started:
		assert.Equal(t, "three", v, "latest policy MUST show only the newest value")
	case <-time.After(time.Second):
		t.Fatal("pending value MUST be shown after dismissal")
	}
}
