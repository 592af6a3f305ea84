package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressline/pressline/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:     "pressline",
		Usage:    "Migrate blog posts into a WordPress-compatible CMS",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	err := app.Run(ctx, os.Args)

	// The ledger connection must close on every exit path, interrupts
	// included, before the process decides its exit code.
	stop()
	runner.Close()

	if err != nil {
		if errors.Is(err, errItemsFailed) {
			os.Exit(1)
		}
		logger.Error("application error", "error", err)
		os.Exit(1)
	}
}
