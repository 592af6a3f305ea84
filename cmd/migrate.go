package main

import (
	"context"
	"fmt"

	"github.com/pressline/pressline/internal/tasks"
	"github.com/urfave/cli/v3"
)

// MigrateRun runs a full batch migration: discover, plan against the ledger,
// migrate the pending set through the worker pool.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	store, err := r.openStore()
	if err != nil {
		return err
	}
	engine := r.buildEngine(store)

	retryFailed := cmd.Bool("retry-failed")
	r.logger.Info("starting migration",
		"source", r.config.Source.BaseURL, "destination", r.config.Destination.BaseURL,
		"retry_failed", retryFailed)
	r.writePlain("Migrating %s\n\n", r.config.Source.BaseURL)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.printProgress(update)
		}
	}()

	summary, err := engine.RunFull(ctx, retryFailed, progressCh)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	return r.reportSummary(cmd, summary)
}

// MigrateSingle migrates one explicitly named post as its own job.
func (r *Runner) MigrateSingle(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}
	store, err := r.openStore()
	if err != nil {
		return err
	}
	engine := r.buildEngine(store)

	url := cmd.String("url")
	r.logger.Info("migrating single post", "url", url)

	progressCh := make(chan tasks.ProgressUpdate, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.printProgress(update)
		}
	}()

	summary, err := engine.RunSingle(ctx, url, progressCh)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	return r.reportSummary(cmd, summary)
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Discover, tasks.PlanPhase:
		r.writePlain("%s\n", update.Message)
	case tasks.MigratePost:
		r.writePlain("%s\n", update.Message)
	case tasks.PostDone:
		r.writePlain("%s\n", r.styles.OK(update.Message))
	case tasks.PostFailed:
		r.writePlain("%s\n", r.styles.Err(update.Message))
	}
}

// reportSummary prints the run outcome and maps per-post failures to
// errItemsFailed for the exit code.
func (r *Runner) reportSummary(cmd *cli.Command, summary *tasks.Summary) error {
	if cmd.Bool("json") {
		if err := r.writeJSON(summary, true); err != nil {
			return err
		}
	} else {
		r.writePlain("\n%s\n", r.styles.Title("Migration summary"))
		if summary.JobID != "" {
			r.writePlain("Job: %s\n", summary.JobID)
		}
		r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Migrated: %d", summary.Completed)))
		if summary.Failed > 0 {
			r.writePlain("%s\n", r.styles.Err(fmt.Sprintf("Failed:   %d", summary.Failed)))
		}
		if summary.Skipped > 0 {
			r.writePlain("%s\n", r.styles.Warn(fmt.Sprintf("Skipped:  %d", summary.Skipped)))
		}
		r.writePlain("%s\n", r.styles.Help("Posts are created as drafts; review and publish in the CMS."))
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errItemsFailed, summary.Failed, summary.Completed+summary.Failed)
	}
	return nil
}

func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Migrate posts to the destination CMS",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Discover all posts and migrate the ones the ledger has not resolved",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "retry-failed",
						Usage: "Re-attempt URLs whose previous runs failed",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the summary as JSON",
					},
				},
				Action: r.MigrateRun,
			},
			{
				Name:  "single",
				Usage: "Migrate one post by URL",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "url",
						Usage:    "Source post URL",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the summary as JSON",
					},
				},
				Action: r.MigrateSingle,
			},
		},
	}
}
