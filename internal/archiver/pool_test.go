package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePages(n int) []PageDescriptor {
	pages := make([]PageDescriptor, n)
	for i := range pages {
		pages[i] = PageDescriptor{Index: i, Locator: fmt.Sprintf("https://courses.example.com/unit/%d", i)}
	}
	return pages
}

func TestPoolCompleteness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pages int
		limit int
	}{
		{pages: 0, limit: 3},
		{pages: 1, limit: 1},
		{pages: 7, limit: 1},
		{pages: 20, limit: 4},
		{pages: 13, limit: 13},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("pages=%d/limit=%d", tt.pages, tt.limit), func(t *testing.T) {
			t.Parallel()
			pool := NewPool(tt.limit, nil)
			result := pool.Run(context.Background(), makePages(tt.pages), func(_ context.Context, page PageDescriptor) (Success, error) {
				time.Sleep(time.Duration(page.Index%3) * time.Millisecond)
				if page.Index%3 == 0 {
					return Success{}, errFlaky
				}
				return Success{Page: page}, nil
			})
			require.Equal(t, tt.pages, result.Total())

			seen := map[int]bool{}
			for _, s := range result.Successes {
				require.False(t, seen[s.Page.Index], "page %d recorded twice", s.Page.Index)
				seen[s.Page.Index] = true
			}
			for _, f := range result.Failures {
				require.False(t, seen[f.Page.Index], "page %d recorded twice", f.Page.Index)
				seen[f.Page.Index] = true
				assert.ErrorIs(t, f.Err, errFlaky)
			}
			assert.Len(t, seen, tt.pages)
		})
	}
}

func TestPoolConcurrencyBound(t *testing.T) {
	t.Parallel()

	const limit = 3
	var active, peak atomic.Int32
	pool := NewPool(limit, nil)
	result := pool.Run(context.Background(), makePages(25), func(_ context.Context, page PageDescriptor) (Success, error) {
		now := active.Add(1)
		for {
			prev := peak.Load()
			if now <= prev || peak.CompareAndSwap(prev, now) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return Success{Page: page}, nil
	})
	assert.Len(t, result.Successes, 25)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, int32(limit), peak.Load(), "pool should keep every slot busy")
}

func TestPoolIsolatesFailures(t *testing.T) {
	t.Parallel()

	pool := NewPool(2, nil)
	result := pool.Run(context.Background(), makePages(5), func(_ context.Context, page PageDescriptor) (Success, error) {
		if page.Index == 1 {
			return Success{}, &ExhaustedError{Attempts: 3, Err: errFlaky}
		}
		return Success{Page: page, ArtifactPath: page.Locator}, nil
	})
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Page.Index)
	assert.ErrorIs(t, result.Failures[0].Err, ErrExhaustedRetries)
	require.Len(t, result.Successes, 4)
}

func TestPoolOrdersResultsByIndex(t *testing.T) {
	t.Parallel()

	pool := NewPool(5, nil)
	result := pool.Run(context.Background(), makePages(5), func(_ context.Context, page PageDescriptor) (Success, error) {
		// later pages finish first
		time.Sleep(time.Duration(5-page.Index) * 3 * time.Millisecond)
		return Success{Page: page}, nil
	})
	require.Len(t, result.Successes, 5)
	for i, s := range result.Successes {
		assert.Equal(t, i, s.Page.Index)
	}
}

func TestPoolDispatchesInIndexOrder(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		started []int
	)
	pool := NewPool(1, nil)
	pool.Run(context.Background(), makePages(6), func(_ context.Context, page PageDescriptor) (Success, error) {
		mu.Lock()
		started = append(started, page.Index)
		mu.Unlock()
		return Success{Page: page}, nil
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, started)
}

func TestPoolRecordsUnstartedPagesOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	pool := NewPool(1, nil)
	result := pool.Run(ctx, makePages(4), func(_ context.Context, page PageDescriptor) (Success, error) {
		calls.Add(1)
		cancel()
		return Success{Page: page}, nil
	})
	assert.Equal(t, 4, result.Total())
	assert.Equal(t, int32(1), calls.Load())
	require.Len(t, result.Failures, 3)
	for _, f := range result.Failures {
		assert.True(t, errors.Is(f.Err, context.Canceled))
	}
}

func TestPoolRecoversWorkerPanic(t *testing.T) {
	t.Parallel()

	pool := NewPool(2, nil)
	result := pool.Run(context.Background(), makePages(3), func(_ context.Context, page PageDescriptor) (Success, error) {
		if page.Index == 2 {
			panic("boom")
		}
		return Success{Page: page}, nil
	})
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Err.Error(), "boom")
	assert.Len(t, result.Successes, 2)
}
