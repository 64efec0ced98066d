package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_PreservesOrder(t *testing.T) {
	wp := NewWorkerPool(3, 0)
	items := []int{1, 2, 3, 4, 5, 6, 7}

	out, err := Process(context.Background(), wp, items, func(_ context.Context, v int) int {
		time.Sleep(time.Duration(8-v) * time.Millisecond)
		return v * v
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49}, out)
}

func TestProcess_BoundsConcurrency(t *testing.T) {
	wp := NewWorkerPool(4, time.Millisecond)
	items := make([]int, 20)

	var inFlight, peak int32
	var mu sync.Mutex
	_, err := Process(context.Background(), wp, items, func(_ context.Context, _ int) struct{} {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return struct{}{}
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int32(4))
}

func TestProcess_StopsOnCancel(t *testing.T) {
	wp := NewWorkerPool(2, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	out, err := Process(ctx, wp, []int{1, 2, 3, 4, 5, 6}, func(_ context.Context, v int) int {
		if atomic.AddInt32(&calls, 1) == 2 {
			cancel()
		}
		return v
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "the first batch completes, no later batch starts")
	assert.Equal(t, []int{1, 2, 0, 0, 0, 0}, out)
}

func TestProcess_Empty(t *testing.T) {
	out, err := Process(context.Background(), NewWorkerPool(0, 0), []string{}, func(_ context.Context, s string) string { return s })
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, DefaultWorkers, NewWorkerPool(0, 0).Size())
}
