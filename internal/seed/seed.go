// Package seed generates leaderboard test data and checks a served
// leaderboard against it.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/okian/leaderboard/internal/domain/model"
)

// natoWords are combined pairwise into player names such as "AlphaZulu".
var natoWords = []string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf", "Hotel", "India",
	"Juliett", "Kilo", "Lima", "Mike", "November", "Oscar", "Papa", "Quebec", "Romeo",
	"Sierra", "Tango", "Uniform", "Victor", "Whiskey", "Xray", "Yankee", "Zulu",
}

const (
	minScoreStep = 1
	maxScoreStep = 999
	scoreUnit    = 100
)

// MaxPlayers is the number of distinct names the generator can produce.
var MaxPlayers = len(natoWords) * (len(natoWords) - 1)

// ErrTooManyPlayers is returned when more players are requested than names exist.
var ErrTooManyPlayers = errors.New("too many players requested")

// Generator produces deterministic submissions for a given seed.
type Generator struct {
	faker *gofakeit.Faker
	seed  int64
}

// NewGenerator returns a generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{faker: gofakeit.New(uint64(seed)), seed: seed}
}

// Seed returns the seed the generator was created with.
func (g *Generator) Seed() int64 { return g.seed }

// Names returns n distinct two-word names.
func (g *Generator) Names(n int) ([]string, error) {
	if n < 0 || n > MaxPlayers {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyPlayers, n, MaxPlayers)
	}
	seen := make(map[string]struct{}, n)
	names := make([]string, 0, n)
	for len(names) < n {
		first := natoWords[g.faker.Number(0, len(natoWords)-1)]
		second := natoWords[g.faker.Number(0, len(natoWords)-1)]
		if first == second {
			continue
		}
		name := first + second
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Submissions returns the submissions for n players. Each player plays
// levels 1..k for a random k in 1..5.
func (g *Generator) Submissions(n int) ([]model.Submission, error) {
	names, err := g.Names(n)
	if err != nil {
		return nil, err
	}
	subs := make([]model.Submission, 0, n*model.MaxLevel)
	for _, name := range names {
		levels := g.faker.Number(model.MinLevel, model.MaxLevel)
		for level := model.MinLevel; level <= levels; level++ {
			subs = append(subs, model.Submission{
				PlayerName: name,
				Level:      level,
				Score:      g.faker.Number(minScoreStep, maxScoreStep) * scoreUnit,
			})
		}
	}
	return subs, nil
}

// Summary reports what a seeding run applied.
type Summary struct {
	Players     int `json:"players"`
	Submissions int `json:"submissions"`
	Failed      int `json:"failed"`
}

// Submitter applies a single submission.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)
}

// Apply submits every submission in order and stops at the first error.
func Apply(ctx context.Context, s Submitter, subs []model.Submission) error {
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Submit(ctx, sub); err != nil {
			return fmt.Errorf("submission %d (%s level %d): %w", i, sub.PlayerName, sub.Level, err)
		}
	}
	return nil
}
