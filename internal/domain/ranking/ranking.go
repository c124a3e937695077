// Package ranking builds the ordered leaderboard for a level.
package ranking

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Entry is one ranked row. Rank is 1-based and positional.
type Entry struct {
	Rank        int       `json:"rank"`
	ID          uint64    `json:"-"`
	PlayerName  string    `json:"playerName"`
	Score       int       `json:"totalScore"`
	SubmittedAt time.Time `json:"latestSubmission"`
}

// Engine ranks records read from a Store.
type Engine struct {
	store repository.Store
	group singleflight.Group
}

// NewEngine returns an Engine reading from store.
func NewEngine(store repository.Store) *Engine {
	return &Engine{store: store}
}

// Rank returns every record at level in leaderboard order. Concurrent calls
// for the same level share one store scan, so the returned slice must be
// treated as read-only.
func (e *Engine) Rank(ctx context.Context, level int) ([]Entry, error) {
	if !model.IsRankedLevel(level) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	key := strconv.Itoa(level)

	// The shared scan must not die with whichever caller started it.
	ch := e.group.DoChan(key, func() (interface{}, error) {
		start := time.Now()
		recs, err := e.store.RankLevel(context.WithoutCancel(ctx), level)
		if err != nil {
			return nil, err
		}
		entries := Build(recs)
		metrics.RecordRankingLatency(key, float64(time.Since(start).Microseconds())/1000)
		return entries, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("rank level %d: %w", level, res.Err)
		}
		return res.Val.([]Entry), nil
	}
}

// Compare orders records by score desc, submittedAt asc, then id asc.
func Compare(a, b model.ScoreRecord) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Build sorts recs and assigns dense ranks 1..N by position.
func Build(recs []model.ScoreRecord) []Entry {
	sorted := slices.Clone(recs)
	slices.SortFunc(sorted, Compare)

	entries := make([]Entry, len(sorted))
	for i, r := range sorted {
		entries[i] = Entry{
			Rank:        i + 1,
			ID:          r.ID,
			PlayerName:  r.PlayerName,
			Score:       r.Score,
			SubmittedAt: r.SubmittedAt,
		}
	}
	return entries
}

// Find returns the entry whose name matches player case-insensitively
// after normalization.
func Find(entries []Entry, player string) (Entry, bool) {
	player = model.NormalizeName(player)
	if player == "" {
		return Entry{}, false
	}
	for _, e := range entries {
		if strings.EqualFold(e.PlayerName, player) {
			return e, true
		}
	}
	return Entry{}, false
}
