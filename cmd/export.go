package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pressline/pressline/internal/export"
	"github.com/urfave/cli/v3"
)

// ExportLinks writes the internal-link report, with each target resolved
// against the post map where possible.
func (r *Runner) ExportLinks(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	w, cleanup, err := r.reportWriter(cmd.String("output"))
	if err != nil {
		return err
	}
	defer cleanup()

	if err := export.WriteLinkReport(store, w); err != nil {
		return fmt.Errorf("failed to write link report: %w", err)
	}
	if path := cmd.String("output"); path != "" {
		r.writePlain("✓ Link report written to %s\n", path)
	}
	return nil
}

// ExportFailures writes the unresolved failures for the configured blog.
func (r *Runner) ExportFailures(ctx context.Context, cmd *cli.Command) error {
	store, err := r.openStore()
	if err != nil {
		return err
	}

	w, cleanup, err := r.reportWriter(cmd.String("output"))
	if err != nil {
		return err
	}
	defer cleanup()

	if err := export.WriteFailureReport(store, r.config.Source.BaseURL, w); err != nil {
		return fmt.Errorf("failed to write failure report: %w", err)
	}
	if path := cmd.String("output"); path != "" {
		r.writePlain("✓ Failure report written to %s\n", path)
	}
	return nil
}

// reportWriter returns the report destination: a created file, or the
// runner's output when no path is given.
func (r *Runner) reportWriter(path string) (io.Writer, func(), error) {
	if path == "" {
		return r.output, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() {
		if err := f.Close(); err != nil {
			r.logger.Warn("failed to close report file", "path", path, "error", err)
		}
	}, nil
}

func exportCommand(r *Runner) *cli.Command {
	outputFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the report to a file instead of stdout",
		}
	}

	return &cli.Command{
		Name:  "export",
		Usage: "Export JSON reports from the migration ledger",
		Commands: []*cli.Command{
			{
				Name:   "links",
				Usage:  "Internal links found during migration, resolved against the post map",
				Flags:  []cli.Flag{outputFlag()},
				Action: r.ExportLinks,
			},
			{
				Name:   "failures",
				Usage:  "Posts that failed and were never migrated by a later run",
				Flags:  []cli.Flag{outputFlag()},
				Action: r.ExportFailures,
			},
		},
	}
}
