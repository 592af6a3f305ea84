package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pressline/pressline/internal/export"
	"github.com/pressline/pressline/internal/shared"
	"github.com/pressline/pressline/internal/tasks"
	"github.com/urfave/cli/v3"
)

func testApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "pressline",
		Commands: r.register(),
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
		})

		t.Run("with nil dependencies uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output == nil {
				t.Error("expected default output to be set")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writeJSON(map[string]int{"completed": 2}, false); err != nil {
			t.Fatalf("writeJSON failed: %v", err)
		}

		var decoded map[string]int
		if err := json.Unmarshal(output.Bytes(), &decoded); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if decoded["completed"] != 2 {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("migrated %d posts\n", 3); err != nil {
			t.Fatalf("writePlain failed: %v", err)
		}
		if output.String() != "migrated 3 posts\n" {
			t.Errorf("unexpected output: %q", output.String())
		}
	})
}

func TestReportSummary(t *testing.T) {
	t.Run("FailuresMapToExitError", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})
		cmd := &cli.Command{}

		err := runner.reportSummary(cmd, &tasks.Summary{JobID: "j1", Completed: 1, Failed: 1})
		if !errors.Is(err, errItemsFailed) {
			t.Fatalf("expected errItemsFailed, got %v", err)
		}
		if !strings.Contains(output.String(), "Failed") {
			t.Errorf("summary output missing failure line: %q", output.String())
		}
	})

	t.Run("CleanRunReturnsNil", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})
		cmd := &cli.Command{}

		if err := runner.reportSummary(cmd, &tasks.Summary{JobID: "j1", Completed: 2}); err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if !strings.Contains(output.String(), "Migrated: 2") {
			t.Errorf("summary output missing migrated line: %q", output.String())
		}
	})
}

func TestSetupCommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	dbPath := filepath.Join(dir, "ledger.db")

	conf := "[database]\npath = \"" + strings.ReplaceAll(dbPath, `\`, `\\`) + "\"\n"
	if err := os.WriteFile(configPath, []byte(conf), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output})
	defer runner.Close()

	app := testApp(runner)
	if err := app.Run(context.Background(), []string{"pressline", "setup", "--config", configPath}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("expected ledger database to be created: %v", err)
	}
	if !strings.Contains(output.String(), "Ledger ready") {
		t.Errorf("unexpected output: %q", output.String())
	}

	// Setup is idempotent: a second run over the same ledger succeeds.
	runner2 := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
	defer runner2.Close()
	if err := testApp(runner2).Run(context.Background(), []string{"pressline", "setup", "--config", configPath}); err != nil {
		t.Fatalf("second setup failed: %v", err)
	}
}

func TestExportCommands(t *testing.T) {
	dir := t.TempDir()

	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(dir, "ledger.db")

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Config: config, Output: output})
	defer runner.Close()

	if _, err := runner.openStore(); err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := shared.RunMigrations(runner.db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	app := testApp(runner)

	t.Run("LinksToStdout", func(t *testing.T) {
		output.Reset()
		if err := app.Run(context.Background(), []string{"pressline", "export", "links"}); err != nil {
			t.Fatalf("export links failed: %v", err)
		}
		var report export.LinkReport
		if err := json.Unmarshal(output.Bytes(), &report); err != nil {
			t.Fatalf("output is not a valid link report: %v", err)
		}
	})

	t.Run("FailuresToFile", func(t *testing.T) {
		path := filepath.Join(dir, "failures.json")
		if err := app.Run(context.Background(), []string{"pressline", "export", "failures", "-o", path}); err != nil {
			t.Fatalf("export failures failed: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("report file missing: %v", err)
		}
		var report export.FailureReport
		if err := json.Unmarshal(data, &report); err != nil {
			t.Fatalf("file is not a valid failure report: %v", err)
		}
	})
}
