package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Pool runs post migrations on a fixed number of workers. Dispatch is
// admission controlled by a token bucket so the pool never exceeds the
// configured request pacing regardless of worker count.
type Pool struct {
	workers int
	limiter *rate.Limiter
	logger  *log.Logger
}

// PoolOpts contains configuration options for creating a Pool.
type PoolOpts struct {
	Workers  int
	Interval time.Duration // pacing window
	Burst    int           // dispatches allowed per window
	Logger   *log.Logger
}

// NewPool creates a Pool. A zero interval disables admission pacing.
func NewPool(opts PoolOpts) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.Interval > 0 {
		if opts.Burst <= 0 {
			opts.Burst = 1
		}
		// Burst dispatches per interval: the bucket refills burst tokens
		// over each interval, not one.
		limiter = rate.NewLimiter(rate.Every(opts.Interval/time.Duration(opts.Burst)), opts.Burst)
	}
	return &Pool{workers: opts.Workers, limiter: limiter, logger: opts.Logger}
}

// TaskResult is the outcome of one migrated URL.
type TaskResult struct {
	URL    string
	PostID int64
	Err    error
}

// Run migrates urls through task and returns one result per URL, in input
// order. A task failure is recorded in its result and never stops the other
// workers. Cancelling ctx stops admission: undispatched URLs get the context
// error while tasks already dispatched run to completion, so a partially
// applied migration always settles its ledger state.
func (p *Pool) Run(ctx context.Context, urls []string, task func(ctx context.Context, url string) (int64, error), progress chan<- ProgressUpdate) []TaskResult {
	results := make([]TaskResult, len(urls))
	total := len(urls)
	taskCtx := context.WithoutCancel(ctx)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				url := urls[i]
				sendProgress(progress, migratePostUpdate(i+1, total, url))

				postID, err := task(taskCtx, url)
				results[i] = TaskResult{URL: url, PostID: postID, Err: err}

				if err != nil {
					if p.logger != nil {
						p.logger.Error("post migration failed", "url", url, "error", err)
					}
					sendProgress(progress, postFailedUpdate(i+1, total, url, err))
					continue
				}
				sendProgress(progress, postDoneUpdate(i+1, total, url, postID))
			}
		}()
	}

	dispatched := 0
	for i := range urls {
		if err := p.limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case jobs <- i:
			dispatched++
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	for i := dispatched; i < len(urls); i++ {
		results[i] = TaskResult{URL: urls[i], Err: ctx.Err()}
	}
	return results
}

// sendProgress delivers an update without blocking; a slow consumer drops
// updates rather than stalling the workers.
func sendProgress(ch chan<- ProgressUpdate, update ProgressUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- update:
	default:
	}
}
