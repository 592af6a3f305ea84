package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/media"
	"github.com/pressline/pressline/internal/retry"
	"github.com/pressline/pressline/internal/shared"
	"github.com/pressline/pressline/internal/source"
	"github.com/pressline/pressline/internal/tasks"
	"github.com/pressline/pressline/internal/ui"
	"github.com/pressline/pressline/internal/wordpress"
	"github.com/urfave/cli/v3"
)

// errItemsFailed marks a run that finished with per-post failures. The
// summary is already printed when this is returned; main only maps it to a
// non-zero exit code.
var errItemsFailed = errors.New("some posts failed to migrate")

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	styles     *ui.Palette
	db         *sql.DB
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		styles:     ui.DefaultPalette(),
	}
}

// Close releases the ledger connection. Safe to call multiple times.
func (r *Runner) Close() {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
		r.db = nil
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, migrateCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openStore opens the ledger database on first use. The connection is owned
// by the Runner and closed in main on every exit path.
func (r *Runner) openStore() (*ledger.Store, error) {
	if r.db == nil {
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
		r.db = db
	}
	return ledger.NewStore(r.db), nil
}

// retryPolicy builds the backoff policy from configuration, falling back to
// defaults for unset fields.
func (r *Runner) retryPolicy() retry.Policy {
	m := r.config.Migration
	policy := retry.DefaultPolicy()
	if m.RetryMaxAttempts > 0 {
		policy.MaxAttempts = m.RetryMaxAttempts
	}
	if m.RetryInitialMS > 0 {
		policy.InitialDelay = time.Duration(m.RetryInitialMS) * time.Millisecond
	}
	if m.RetryMaxMS > 0 {
		policy.MaxDelay = time.Duration(m.RetryMaxMS) * time.Millisecond
	}
	if m.RetryMultiplier > 0 {
		policy.Multiplier = m.RetryMultiplier
	}
	return policy
}

// buildEngine wires crawler, destination client, media pipeline, saga and
// worker pool from the active configuration.
func (r *Runner) buildEngine(store *ledger.Store) *tasks.Engine {
	policy := r.retryPolicy()

	crawler := source.NewCrawler(source.CrawlerOpts{
		BaseURL:    r.config.Source.BaseURL,
		HTTPClient: r.httpClient,
		Policy:     policy,
		Logger:     r.logger,
	})
	client := wordpress.NewClient(wordpress.ClientOpts{
		BaseURL:    r.config.Destination.BaseURL,
		Username:   r.config.Destination.Username,
		Password:   r.config.Destination.AppPassword,
		HTTPClient: r.httpClient,
		Policy:     policy,
		Logger:     r.logger,
	})
	pipeline := media.NewPipeline(media.PipelineOpts{
		Store:      store,
		Uploader:   client,
		HTTPClient: r.httpClient,
		Policy:     policy,
		Logger:     r.logger,
	})
	migrator := tasks.NewMigrator(tasks.MigratorOpts{
		Store:       store,
		Source:      crawler,
		Parser:      source.NewHTMLParser(),
		Transformer: source.NewHTMLTransformer(),
		Destination: client,
		Media:       pipeline,
		Logger:      r.logger,
	})
	pool := tasks.NewPool(tasks.PoolOpts{
		Workers:  r.config.Migration.Concurrency,
		Interval: r.config.Migration.RateInterval(),
		Burst:    r.config.Migration.RateCap,
		Logger:   r.logger,
	})

	return tasks.NewEngine(tasks.EngineOpts{
		Store:    store,
		Source:   crawler,
		Migrator: migrator,
		Pool:     pool,
		BlogURL:  r.config.Source.BaseURL,
		Logger:   r.logger,
	})
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
