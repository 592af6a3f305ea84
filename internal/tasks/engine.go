// package tasks orchestrates migration runs: the per-post saga with
// compensating rollback, the rate-limited worker pool and ledger-driven
// resume planning.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/source"
)

// Engine ties discovery, planning, the worker pool and the saga into job
// runs. Every run is recorded as one ledger job, finalized exactly once.
type Engine struct {
	store    *ledger.Store
	source   source.Source
	migrator *Migrator
	pool     *Pool
	blogURL  string
	logger   *log.Logger
}

// EngineOpts contains configuration options for creating an Engine.
type EngineOpts struct {
	Store    *ledger.Store
	Source   source.Source
	Migrator *Migrator
	Pool     *Pool
	BlogURL  string
	Logger   *log.Logger
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOpts) *Engine {
	return &Engine{
		store:    opts.Store,
		source:   opts.Source,
		migrator: opts.Migrator,
		pool:     opts.Pool,
		blogURL:  opts.BlogURL,
		logger:   opts.Logger,
	}
}

// Summary is the outcome of one job run.
type Summary struct {
	JobID     string `json:"job_id"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

// RunFull discovers the blog's posts, plans the pending set against the
// ledger and migrates it through the worker pool. The returned error covers
// setup failures only; per-post failures are counted in the summary and
// recorded on their items.
func (e *Engine) RunFull(ctx context.Context, retryFailed bool, progress chan<- ProgressUpdate) (*Summary, error) {
	job, err := e.store.CreateJob(models.JobTypeFull)
	if err != nil {
		return nil, err
	}

	urls, err := e.source.DiscoverURLs(ctx)
	if err != nil {
		e.finalizeJob(job.ID, 0, 0, fmt.Errorf("discover posts: %w", err))
		return nil, fmt.Errorf("discover posts: %w", err)
	}
	sendProgress(progress, discoverUpdate(len(urls)))

	plan, err := BuildPlan(e.store, e.blogURL, urls, retryFailed)
	if err != nil {
		e.finalizeJob(job.ID, 0, 0, err)
		return nil, err
	}
	sendProgress(progress, planUpdate(len(plan.Pending), plan.Skipped))

	summary := &Summary{JobID: job.ID, Total: len(urls), Skipped: plan.Skipped}
	results := e.pool.Run(ctx, plan.Pending, func(ctx context.Context, url string) (int64, error) {
		return e.migrator.MigrateOne(ctx, job.ID, url)
	}, progress)
	for _, res := range results {
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Completed++
		}
	}

	e.finalizeJob(job.ID, summary.Completed, summary.Failed, nil)
	sendProgress(progress, finalizeUpdate(summary.Completed, summary.Failed, summary.Skipped))
	return summary, ctx.Err()
}

// RunSingle migrates one explicitly named post as its own job. A URL already
// in the post map is skipped, not re-created.
func (e *Engine) RunSingle(ctx context.Context, url string, progress chan<- ProgressUpdate) (*Summary, error) {
	migrated, err := hasPostMap(e.store, url)
	if err != nil {
		return nil, err
	}
	if migrated {
		if e.logger != nil {
			e.logger.Info("post already migrated", "url", url)
		}
		return &Summary{Total: 1, Skipped: 1}, nil
	}

	job, err := e.store.CreateJob(models.JobTypeSingle)
	if err != nil {
		return nil, err
	}

	summary := &Summary{JobID: job.ID, Total: 1}
	sendProgress(progress, migratePostUpdate(1, 1, url))
	postID, err := e.migrator.MigrateOne(ctx, job.ID, url)
	if err != nil {
		summary.Failed = 1
		sendProgress(progress, postFailedUpdate(1, 1, url, err))
	} else {
		summary.Completed = 1
		sendProgress(progress, postDoneUpdate(1, 1, url, postID))
	}

	e.finalizeJob(job.ID, summary.Completed, summary.Failed, nil)
	return summary, nil
}

// finalizeJob moves a job to its terminal status: failed when any item
// failed or setup broke, completed otherwise.
func (e *Engine) finalizeJob(jobID string, completed, failed int, setupErr error) {
	now := time.Now()
	status := models.JobStatusCompleted
	patch := ledger.JobPatch{Status: &status, CompletedAt: &now}

	if setupErr != nil {
		status = models.JobStatusFailed
		msg := setupErr.Error()
		patch.ErrorMessage = &msg
	} else if failed > 0 {
		status = models.JobStatusFailed
		msg := fmt.Sprintf("%d of %d items failed", failed, completed+failed)
		patch.ErrorMessage = &msg
	}

	if err := e.store.UpdateJob(jobID, patch); err != nil && e.logger != nil {
		e.logger.Error("failed to finalize job", "job_id", jobID, "error", err)
	}
}
