// Package submission applies score submissions with best-score-wins
// semantics and keeps each player's level-0 total in step.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryInitial = 5 * time.Millisecond
	retryMaxInterval    = 250 * time.Millisecond
)

// Processor validates and applies submissions against a Store.
type Processor struct {
	store        repository.Store
	now          func() time.Time
	maxAttempts  int
	retryInitial time.Duration
	log          logger.Logger
}

// NewProcessor returns a Processor writing to store.
func NewProcessor(store repository.Store, opts ...Option) *Processor {
	p := &Processor{
		store:        store,
		now:          time.Now,
		maxAttempts:  defaultMaxAttempts,
		retryInitial: defaultRetryInitial,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		p.log = logger.Named("submission")
	}
	return p
}

// Validate normalizes the player name and checks every bound. The returned
// submission carries the normalized name.
func Validate(sub model.Submission) (model.Submission, error) {
	sub.PlayerName = model.NormalizeName(sub.PlayerName)
	switch {
	case sub.PlayerName == "":
		return sub, invalid("playerName", "is required")
	case model.NameLength(sub.PlayerName) > model.MaxPlayerNameLength:
		return sub, invalid("playerName", "must be at most %d characters", model.MaxPlayerNameLength)
	case !model.IsRealLevel(sub.Level):
		return sub, invalid("level", "must be between %d and %d", model.MinLevel, model.MaxLevel)
	case sub.Score < model.MinScore || sub.Score > model.MaxScore:
		return sub, invalid("score", "must be between %d and %d", model.MinScore, model.MaxScore)
	}
	return sub, nil
}

// Submit validates sub and applies it. It returns the player's record for
// sub.Level, unchanged when the score is not strictly higher than the
// stored best. Store conflicts are retried with a fresh read; when the
// attempts run out the returned error matches repository.ErrConflict.
func (p *Processor) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSubmitLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	sub, err := Validate(sub)
	if err != nil {
		metrics.RecordSubmission(metrics.OutcomeInvalid)
		return model.ScoreRecord{}, err
	}
	key := model.Key(sub.PlayerName)

	var (
		rec     model.ScoreRecord
		outcome string
	)
	attempts := 0
	operation := func() error {
		attempts++
		r, o, err := p.apply(ctx, key, sub)
		if err == nil {
			rec, outcome = r, o
			return nil
		}
		if errors.Is(err, repository.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		metrics.RecordConflictRetry()
		p.log.Debug(ctx, "submission conflicted, retrying",
			logger.String("player", sub.PlayerName),
			logger.Int("level", sub.Level),
			logger.Int("attempt", attempts),
			logger.Duration("wait", wait),
			logger.Error(err))
	}

	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		metrics.RecordSubmission(metrics.OutcomeFailed)
		if errors.Is(err, repository.ErrConflict) {
			return model.ScoreRecord{}, fmt.Errorf("submit after %d attempts: %w", attempts, err)
		}
		return model.ScoreRecord{}, fmt.Errorf("submit: %w", err)
	}

	metrics.RecordSubmission(outcome)
	p.log.Debug(ctx, "submission applied",
		logger.String("player", rec.PlayerName),
		logger.Int("level", rec.Level),
		logger.Int("score", rec.Score),
		logger.String("outcome", outcome))
	return rec, nil
}

func (p *Processor) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.retryInitial
	eb.MaxInterval = retryMaxInterval
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxAttempts-1)), ctx)
}

// apply runs one attempt inside the player's exclusive scope.
func (p *Processor) apply(ctx context.Context, key string, sub model.Submission) (model.ScoreRecord, string, error) {
	var (
		out     model.ScoreRecord
		outcome string
	)
	err := p.store.WithinPlayer(ctx, key, func(tx repository.PlayerTx) error {
		now := p.now().UTC()

		existing, err := tx.Get(ctx, sub.Level)
		switch {
		case err == nil:
			if sub.Score <= existing.Score {
				out, outcome = existing, metrics.OutcomeUnchanged
				return nil
			}
			existing.Score = sub.Score
			existing.SubmittedAt = now
			if err := tx.Update(ctx, existing); err != nil {
				return fmt.Errorf("update level %d: %w", sub.Level, err)
			}
			out, outcome = existing, metrics.OutcomeImproved

		case errors.Is(err, repository.ErrNotFound):
			name, err := displayName(ctx, tx, sub.PlayerName)
			if err != nil {
				return err
			}
			rec := model.ScoreRecord{PlayerName: name, Level: sub.Level, Score: sub.Score, SubmittedAt: now}
			if err := tx.Insert(ctx, &rec); err != nil {
				return fmt.Errorf("insert level %d: %w", sub.Level, err)
			}
			out, outcome = rec, metrics.OutcomeInserted

		default:
			return fmt.Errorf("lookup level %d: %w", sub.Level, err)
		}

		total, err := tx.Sum(ctx, model.MinLevel, model.MaxLevel)
		if err != nil {
			return fmt.Errorf("sum levels: %w", err)
		}
		agg := model.ScoreRecord{PlayerName: out.PlayerName, Level: model.AggregateLevel, Score: total, SubmittedAt: now}
		if err := tx.Upsert(ctx, &agg); err != nil {
			return fmt.Errorf("upsert total: %w", err)
		}
		return nil
	})
	return out, outcome, err
}

// displayName keeps the casing a player was first stored with.
func displayName(ctx context.Context, tx repository.PlayerTx, name string) (string, error) {
	recs, err := tx.Levels(ctx, model.AggregateLevel, model.MaxLevel)
	if err != nil {
		return "", fmt.Errorf("lookup player: %w", err)
	}
	if len(recs) > 0 {
		return recs[0].PlayerName, nil
	}
	return name, nil
}
