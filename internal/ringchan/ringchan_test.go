package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceSend_DropsOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.ForceSend(i)
	}

	var got []int
	for {
		v, ok := rc.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got, "only the last values MUST survive")

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
	assert.Equal(t, int64(3), m.Processed)
}

func TestTrySend_FailsWhenFull(t *testing.T) {
	rc := New[string](1)
	require.True(t, rc.TrySend("a"))
	assert.False(t, rc.TrySend("b"))
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestReceive_ReportsClose(t *testing.T) {
	rc := New[int](2)
	rc.ForceSend(1)
	rc.Close()

	v, ok := rc.Receive()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = rc.Receive()
	assert.False(t, ok)
}

func TestForceSend_ConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.ForceSend(i)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, rc.Len(), 4)
	assert.Equal(t, int64(8000), rc.GetMetrics().Written)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
