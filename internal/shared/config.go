package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Source      SourceConfig      `toml:"source"`
	Destination DestinationConfig `toml:"destination"`
	Database    DatabaseConfig    `toml:"database"`
	Migration   MigrationConfig   `toml:"migration"`
}

// SourceConfig identifies the blog being migrated.
type SourceConfig struct {
	BaseURL string `toml:"base_url"`
}

// DestinationConfig contains credentials for the destination CMS REST API.
//
// Username and AppPassword form the basic-auth pair.
type DestinationConfig struct {
	BaseURL     string `toml:"base_url"`
	Username    string `toml:"username"`
	AppPassword string `toml:"app_password"`
}

// DatabaseConfig contains ledger database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// MigrationConfig tunes the worker pool and retry policy.
type MigrationConfig struct {
	Concurrency      int     `toml:"concurrency"`
	RateIntervalMS   int     `toml:"rate_interval_ms"`
	RateCap          int     `toml:"rate_cap"`
	RetryMaxAttempts int     `toml:"retry_max_attempts"`
	RetryInitialMS   int     `toml:"retry_initial_ms"`
	RetryMaxMS       int     `toml:"retry_max_ms"`
	RetryMultiplier  float64 `toml:"retry_multiplier"`
}

// RateInterval returns the admission window as a [time.Duration].
func (m MigrationConfig) RateInterval() time.Duration {
	return time.Duration(m.RateIntervalMS) * time.Millisecond
}

// Validate checks that the parts of the configuration required before any
// network or ledger activity are present.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("%w: source.base_url is required", ErrInvalidConfig)
	}
	if c.Destination.BaseURL == "" {
		return fmt.Errorf("%w: destination.base_url is required", ErrInvalidConfig)
	}
	if c.Destination.Username == "" || c.Destination.AppPassword == "" {
		return fmt.Errorf("%w: destination username and app_password are required", ErrMissingCredentials)
	}
	if c.Migration.Concurrency <= 0 {
		return fmt.Errorf("%w: migration.concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
