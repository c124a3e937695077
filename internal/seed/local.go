package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/ranking"
	"github.com/okian/leaderboard/internal/domain/submission"
	"github.com/okian/leaderboard/pkg/logger"
)

// LocalConfig controls a seeding run against a store opened in process.
type LocalConfig struct {
	Players int
	Seed    int64
	Clear   bool
}

// RunLocal applies generated submissions to store through the submission
// processor and verifies the resulting overall leaderboard.
func RunLocal(ctx context.Context, store repository.Store, cfg LocalConfig) (Report, error) {
	log := logger.Named("seed")
	start := time.Now()

	gen := NewGenerator(cfg.Seed)
	report := Report{Seed: gen.Seed()}
	report.Players = cfg.Players

	if cfg.Clear {
		n, err := store.ClearAll(ctx)
		if err != nil {
			return report, fmt.Errorf("clear: %w", err)
		}
		log.Info(ctx, "cleared", logger.Int64("deleted", n))
	}
	subs, err := gen.Submissions(cfg.Players)
	if err != nil {
		return report, err
	}
	report.Submissions = len(subs)

	if err := Apply(ctx, submission.NewProcessor(store), subs); err != nil {
		report.Failed = 1
		return report, err
	}

	entries, err := ranking.NewEngine(store).Rank(ctx, model.AggregateLevel)
	if err != nil {
		return report, err
	}
	report.Entries = len(entries)
	report.Duration = time.Since(start)
	if err := Verify(entries, Expected(subs)); err != nil {
		return report, err
	}
	log.Info(ctx, "verified",
		logger.Int("entries", len(entries)),
		logger.Duration("duration", report.Duration))
	return report, nil
}
