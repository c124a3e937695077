// Command seed fills a leaderboard with generated players and verifies the
// resulting ranking.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/seed"
	"github.com/okian/leaderboard/pkg/logger"
)

func main() {
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Get().Error(ctx, "seed failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "seed",
		Usage: "populate a leaderboard and verify its ranking",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"LEADERBOARD_LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "text", EnvVars: []string{"LEADERBOARD_LOG_FORMAT"}},
		},
		Before: func(c *cli.Context) error {
			if err := logger.SetFormat(c.String("log-format")); err != nil {
				return err
			}
			return logger.SetLevelString(c.String("log-level"))
		},
		Commands: []*cli.Command{
			remoteCommand(),
			localCommand(),
		},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "players", Aliases: []string{"n"}, Value: 50, Usage: "number of players to generate"},
		&cli.Int64Flag{Name: "seed", Usage: "generator seed, 0 for time based"},
		&cli.BoolFlag{Name: "clear", Usage: "delete existing scores first"},
	}
}

func remoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "submit over HTTP to a running server",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "server base URL"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 8, Usage: "concurrent submitters"},
			&cli.Float64Flag{Name: "rate", Usage: "submissions per second, 0 for unlimited"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per request timeout"},
		),
		Action: func(c *cli.Context) error {
			client := seed.NewClient(c.String("url"), c.Duration("timeout"))
			report, err := seed.RunRemote(c.Context, client, seed.RemoteConfig{
				Players: c.Int("players"),
				Workers: c.Int("workers"),
				Rate:    c.Float64("rate"),
				Seed:    c.Int64("seed"),
				Clear:   c.Bool("clear"),
			})
			printReport(c, report)
			return err
		},
	}
}

func localCommand() *cli.Command {
	return &cli.Command{
		Name:  "local",
		Usage: "apply directly to a SQLite database",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "db", Value: "data/leaderboard.db", Usage: "database file", EnvVars: []string{"LEADERBOARD_DATABASE_PATH"}},
		),
		Action: func(c *cli.Context) error {
			store, err := repository.OpenGorm(c.Context, c.String("db"),
				repository.WithLogger(logger.Named("store")))
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Get().Error(context.Background(), "failed to close store", logger.Error(err))
				}
			}()
			report, err := seed.RunLocal(c.Context, store, seed.LocalConfig{
				Players: c.Int("players"),
				Seed:    c.Int64("seed"),
				Clear:   c.Bool("clear"),
			})
			printReport(c, report)
			return err
		},
	}
}

func printReport(c *cli.Context, report seed.Report) {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
