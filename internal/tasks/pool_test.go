package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRun(t *testing.T) {
	urls := []string{
		"https://blog.example.com/posts/a",
		"https://blog.example.com/posts/b",
		"https://blog.example.com/posts/c",
	}

	t.Run("FailureDoesNotStopOtherTasks", func(t *testing.T) {
		pool := NewPool(PoolOpts{Workers: 2})
		boom := errors.New("boom")

		var mu sync.Mutex
		calls := map[string]int{}
		results := pool.Run(context.Background(), urls, func(ctx context.Context, url string) (int64, error) {
			mu.Lock()
			calls[url]++
			mu.Unlock()
			if url == urls[1] {
				return 0, boom
			}
			return 7, nil
		}, nil)

		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		for i, res := range results {
			if res.URL != urls[i] {
				t.Errorf("result %d out of order: %s", i, res.URL)
			}
		}
		for _, url := range urls {
			if calls[url] != 1 {
				t.Errorf("task for %s ran %d times, want 1", url, calls[url])
			}
		}
		if results[0].Err != nil || results[2].Err != nil {
			t.Errorf("healthy tasks should succeed: %v, %v", results[0].Err, results[2].Err)
		}
		if !errors.Is(results[1].Err, boom) {
			t.Errorf("expected task error to surface, got %v", results[1].Err)
		}
	})

	t.Run("RunsTasksConcurrently", func(t *testing.T) {
		pool := NewPool(PoolOpts{Workers: 3})

		var active, peak int32
		results := pool.Run(context.Background(), urls, func(ctx context.Context, url string) (int64, error) {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return 1, nil
		}, nil)

		if len(results) != 3 {
			t.Fatalf("expected 3 results, got %d", len(results))
		}
		if atomic.LoadInt32(&peak) < 2 {
			t.Errorf("expected overlapping execution, peak was %d", peak)
		}
	})

	t.Run("PacedDispatch", func(t *testing.T) {
		pool := NewPool(PoolOpts{Workers: 3, Interval: 30 * time.Millisecond, Burst: 1})

		var mu sync.Mutex
		var stamps []time.Time
		start := time.Now()
		pool.Run(context.Background(), urls, func(ctx context.Context, url string) (int64, error) {
			mu.Lock()
			stamps = append(stamps, time.Now())
			mu.Unlock()
			return 1, nil
		}, nil)

		if len(stamps) != 3 {
			t.Fatalf("expected 3 dispatches, got %d", len(stamps))
		}
		if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
			t.Errorf("3 dispatches at 30ms spacing finished in %v", elapsed)
		}
	})

	t.Run("BurstDispatchesPerWindow", func(t *testing.T) {
		many := []string{
			"https://blog.example.com/posts/a",
			"https://blog.example.com/posts/b",
			"https://blog.example.com/posts/c",
			"https://blog.example.com/posts/d",
			"https://blog.example.com/posts/e",
			"https://blog.example.com/posts/f",
		}
		pool := NewPool(PoolOpts{Workers: 6, Interval: 120 * time.Millisecond, Burst: 2})

		start := time.Now()
		results := pool.Run(context.Background(), many, func(ctx context.Context, url string) (int64, error) {
			return 1, nil
		}, nil)
		elapsed := time.Since(start)

		if len(results) != 6 {
			t.Fatalf("expected 6 results, got %d", len(results))
		}
		// 2 per 120ms: 6 instant tasks finish in about two windows. A
		// limiter refilling one token per window would need four.
		if elapsed < 200*time.Millisecond {
			t.Errorf("6 dispatches at 2 per 120ms finished in %v", elapsed)
		}
		if elapsed > 400*time.Millisecond {
			t.Errorf("dispatch collapsed to one per window: %v", elapsed)
		}
	})

	t.Run("CancelledContextSkipsDispatch", func(t *testing.T) {
		pool := NewPool(PoolOpts{Workers: 2})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var calls int32
		results := pool.Run(ctx, urls, func(ctx context.Context, url string) (int64, error) {
			atomic.AddInt32(&calls, 1)
			return 1, nil
		}, nil)

		if got := atomic.LoadInt32(&calls); got != 0 {
			t.Errorf("expected no task calls after cancellation, got %d", got)
		}
		for i, res := range results {
			if !errors.Is(res.Err, context.Canceled) {
				t.Errorf("result %d should carry the context error, got %v", i, res.Err)
			}
			if res.URL != urls[i] {
				t.Errorf("result %d missing its URL", i)
			}
		}
	})

	t.Run("ProgressUpdatesFlow", func(t *testing.T) {
		pool := NewPool(PoolOpts{Workers: 1})
		progress := make(chan ProgressUpdate, 16)

		pool.Run(context.Background(), urls[:1], func(ctx context.Context, url string) (int64, error) {
			return 42, nil
		}, progress)
		close(progress)

		var phases []Phase
		for u := range progress {
			phases = append(phases, u.Phase)
		}
		if len(phases) != 2 || phases[0] != MigratePost || phases[1] != PostDone {
			t.Errorf("unexpected progress phases: %v", phases)
		}
	})
}
