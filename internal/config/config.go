// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and LEADERBOARD_* env vars over the defaults.
// - Validate reports the first offending key wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the score store: sqlite or memory.
	StoreDriver string `koanf:"store_driver"`

	// DatabasePath is the SQLite file; ":memory:" keeps it in process.
	DatabasePath string `koanf:"database_path"`

	// DefaultPageSize and MaxPageSize bound GET /api/leaderboard?pageSize.
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`

	// SubmitMaxAttempts bounds retries of a submission after a write conflict.
	SubmitMaxAttempts int `koanf:"submit_max_attempts"`

	// SubmitRetryInitialMS is the first backoff interval between attempts.
	SubmitRetryInitialMS int `koanf:"submit_retry_initial_ms"`

	// QueueSize bounds the import queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of import workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many import idempotency keys are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// PopulatePlayers is the default player count of the populate endpoint.
	PopulatePlayers int `koanf:"populate_players"`

	// SubmitRatePerSec and SubmitBurst size the per-IP submission limiter. 0 disables it.
	SubmitRatePerSec float64 `koanf:"submit_rate_per_sec"`
	SubmitBurst      int     `koanf:"submit_burst"`

	// MaintenanceEnabled exposes the clear and populate endpoints.
	MaintenanceEnabled bool `koanf:"maintenance_enabled"`

	// MetricsEnabled turns the Prometheus recorders on or off.
	MetricsEnabled bool `koanf:"metrics_enabled"`

	// MetricsNamespace prefixes every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`

	// MetricsLabels are constant labels added to every metric (YAML only).
	MetricsLabels map[string]string `koanf:"metrics_labels"`
}

var metricNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":8080",
		StoreDriver:          DriverSQLite,
		DatabasePath:         "data/leaderboard.db",
		DefaultPageSize:      10,
		MaxPageSize:          100,
		SubmitMaxAttempts:    5,
		SubmitRetryInitialMS: 5,
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           50_000,
		PopulatePlayers:      50,
		SubmitRatePerSec:     0,
		SubmitBurst:          20,
		MaintenanceEnabled:   true,
		MetricsEnabled:       true,
		MetricsNamespace:     "leaderboard",
	}
}

// Validate checks every key and reports the first invalid one.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr", "must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format", "must be text or json")
	case c.StoreDriver != DriverSQLite && c.StoreDriver != DriverMemory:
		return invalid("store_driver", "must be sqlite or memory")
	case c.StoreDriver == DriverSQLite && strings.TrimSpace(c.DatabasePath) == "":
		return invalid("database_path", "must not be empty for the sqlite driver")
	case c.DefaultPageSize < 1:
		return invalid("default_page_size", "must be positive")
	case c.MaxPageSize < c.DefaultPageSize:
		return invalid("max_page_size", "must be at least default_page_size")
	case c.SubmitMaxAttempts < 1:
		return invalid("submit_max_attempts", "must be positive")
	case c.SubmitRetryInitialMS < 0:
		return invalid("submit_retry_initial_ms", "must not be negative")
	case c.QueueSize < 1:
		return invalid("queue_size", "must be positive")
	case c.WorkerCount < 1:
		return invalid("worker_count", "must be positive")
	case c.DedupeSize < 1:
		return invalid("dedupe_size", "must be positive")
	case c.PopulatePlayers < 1:
		return invalid("populate_players", "must be positive")
	case c.SubmitRatePerSec < 0:
		return invalid("submit_rate_per_sec", "must not be negative")
	case c.SubmitRatePerSec > 0 && c.SubmitBurst < 1:
		return invalid("submit_burst", "must be positive when rate limiting is on")
	case !metricNamePattern.MatchString(c.MetricsNamespace):
		return invalid("metrics_namespace", "must be a valid Prometheus name")
	}
	for name := range c.MetricsLabels {
		if !metricNamePattern.MatchString(name) || strings.HasPrefix(name, "__") {
			return invalid("metrics_labels", fmt.Sprintf("invalid label name %q", name))
		}
	}
	return nil
}

func invalid(key, msg string) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, key, msg)
}
