package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/leaderboard/internal/config"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("LEADERBOARD_ADDR", ":9090")
			_ = os.Setenv("LEADERBOARD_QUEUE_SIZE", "500")
			_ = os.Setenv("LEADERBOARD_WORKER_COUNT", "3")
			_ = os.Setenv("LEADERBOARD_STORE_DRIVER", "MEMORY")
			_ = os.Setenv("LEADERBOARD_SUBMIT_RATE_PER_SEC", "2.5")
			_ = os.Setenv("LEADERBOARD_MAINTENANCE_ENABLED", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
				convey.So(cfg.SubmitRatePerSec, convey.ShouldEqual, 2.5)
				convey.So(cfg.MaintenanceEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
# page sizes
default_page_size: 20
max_page_size: 50   # capped
database_path: /tmp/scores.db
log_format: json
addr: ":7070"
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("LEADERBOARD_CONFIG", tmpFile)
			_ = os.Setenv("LEADERBOARD_ADDR", ":6060")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
				convey.So(cfg.DefaultPageSize, convey.ShouldEqual, 20)
				convey.So(cfg.MaxPageSize, convey.ShouldEqual, 50)
				convey.So(cfg.DatabasePath, convey.ShouldEqual, "/tmp/scores.db")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			})
		})

		convey.Convey("When metrics settings come from file and env", func() {
			tmpFile := createTempConfigFile(`
metrics_namespace: scores
metrics_labels:
  env: staging
  region: eu
`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LEADERBOARD_CONFIG", tmpFile)
			_ = os.Setenv("LEADERBOARD_METRICS_ENABLED", "false")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then they are layered like every other key", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "scores")
				convey.So(cfg.MetricsLabels, convey.ShouldResemble, map[string]string{"env": "staging", "region": "eu"})
				convey.So(cfg.MetricsEnabled, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("LEADERBOARD_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("LEADERBOARD_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value fails validation", func() {
			_ = os.Setenv("LEADERBOARD_MAX_PAGE_SIZE", "5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the offending key is reported", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "max_page_size")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a number is malformed", func() {
			_ = os.Setenv("LEADERBOARD_QUEUE_SIZE", "lots")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"LEADERBOARD_CONFIG",
		"LEADERBOARD_ADDR",
		"LEADERBOARD_QUEUE_SIZE",
		"LEADERBOARD_WORKER_COUNT",
		"LEADERBOARD_STORE_DRIVER",
		"LEADERBOARD_SUBMIT_RATE_PER_SEC",
		"LEADERBOARD_MAINTENANCE_ENABLED",
		"LEADERBOARD_MAX_PAGE_SIZE",
		"LEADERBOARD_METRICS_ENABLED",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "leaderboard-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
