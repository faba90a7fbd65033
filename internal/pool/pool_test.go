package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/ptalign/pkg/errors"
)

func TestRunCollectsPerIndexErrors(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			out := make([]int, 10)
			errs := New(workers).Run(context.Background(), 10, func(_ context.Context, i int) error {
				if i == 3 {
					return fmt.Errorf("job %d failed", i)
				}
				out[i] = i * i
				return nil
			})

			require.Len(t, errs, 10)
			for i, err := range errs {
				if i == 3 {
					assert.EqualError(t, err, "job 3 failed")
					continue
				}
				assert.NoError(t, err)
				assert.Equal(t, i*i, out[i])
			}
		})
	}
}

func TestRunSequentialKeepsOrder(t *testing.T) {
	var order []int
	New(1).Run(context.Background(), 5, func(_ context.Context, i int) error {
		order = append(order, i)
		return nil
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	var mu sync.Mutex
	New(3).Run(context.Background(), 30, func(_ context.Context, _ int) error {
		cur := running.Add(1)
		mu.Lock()
		if cur > peak.Load() {
			peak.Store(cur)
		}
		mu.Unlock()
		for j := 0; j < 1000; j++ {
			_ = j * j
		}
		running.Add(-1)
		return nil
	})
	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.GreaterOrEqual(t, peak.Load(), int64(1))
}

func TestRunRecoversPanics(t *testing.T) {
	errs := New(2).Run(context.Background(), 2, func(_ context.Context, i int) error {
		if i == 1 {
			panic("boom")
		}
		return nil
	})
	assert.NoError(t, errs[0])
	assert.True(t, errors.IsCode(errs[1], errors.CodePanic))
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	errs := New(1).Run(ctx, 3, func(_ context.Context, _ int) error {
		ran.Add(1)
		return nil
	})
	assert.Zero(t, ran.Load())
	for _, err := range errs {
		assert.True(t, errors.IsCode(err, errors.CodeContextCanceled))
	}
}

func TestProgress(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	New(4).OnProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 8, total)
		seen = append(seen, done)
	}).Run(context.Background(), 8, func(_ context.Context, _ int) error { return nil })

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seen)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
	assert.Equal(t, DefaultWorkers(), New(0).Workers())
	assert.Equal(t, 5, New(5).Workers())
}
