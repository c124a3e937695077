package seed

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/ranking"
)

// ErrMismatch is returned by Verify when the leaderboard disagrees with the expected totals.
var ErrMismatch = errors.New("leaderboard mismatch")

// Expected folds submissions into the best score per player and level and
// returns each player's expected aggregate keyed by normalized lowercase name.
func Expected(subs []model.Submission) map[string]int {
	best := make(map[string]map[int]int)
	for _, s := range subs {
		key := model.Key(model.NormalizeName(s.PlayerName))
		if best[key] == nil {
			best[key] = make(map[int]int)
		}
		if s.Score > best[key][s.Level] {
			best[key][s.Level] = s.Score
		}
	}
	totals := make(map[string]int, len(best))
	for key, levels := range best {
		for _, score := range levels {
			totals[key] += score
		}
	}
	return totals
}

// Verify checks that entries form a valid overall leaderboard for the
// expected totals: descending order, dense sequential ranks from 1 and a
// matching total for every player.
func Verify(entries []ranking.Entry, expected map[string]int) error {
	var problems []string
	if len(entries) != len(expected) {
		problems = append(problems, fmt.Sprintf("got %d players, want %d", len(entries), len(expected)))
	}
	for i, e := range entries {
		if e.Rank != i+1 {
			problems = append(problems, fmt.Sprintf("row %d has rank %d", i, e.Rank))
		}
		if i > 0 {
			prev := entries[i-1]
			if prev.Score < e.Score || (prev.Score == e.Score && prev.SubmittedAt.After(e.SubmittedAt)) {
				problems = append(problems, fmt.Sprintf("rows %d and %d out of order", i-1, i))
			}
		}
		want, ok := expected[model.Key(e.PlayerName)]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("unexpected player %q", e.PlayerName))
		case want != e.Score:
			problems = append(problems, fmt.Sprintf("%s total %d, want %d", e.PlayerName, e.Score, want))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	const maxReported = 10
	if len(problems) > maxReported {
		problems = append(problems[:maxReported], fmt.Sprintf("and %d more", len(problems)-maxReported))
	}
	return fmt.Errorf("%w: %s", ErrMismatch, strings.Join(problems, "; "))
}
