// Package pagination slices a ranking into pages and reconciles an
// explicit page request with "jump to player X".
package pagination

import (
	"github.com/okian/leaderboard/internal/domain/ranking"
)

// AutoPage asks Resolve to pick the page itself.
const AutoPage = 0

// Result is one resolved page of a ranking.
type Result struct {
	Page         int             `json:"page"`
	TotalPages   int             `json:"totalPages"`
	TotalPlayers int             `json:"totalPlayers"`
	PlayerRow    *ranking.Entry  `json:"playerRow,omitempty"`
	Results      []ranking.Entry `json:"results"`
}

// Resolve picks the page to return and slices entries into it.
//
// When player matches an entry, that entry is reported as PlayerRow no
// matter which page is returned. With page == AutoPage the page holding
// the player is chosen, or page 1 if there is no match. A page past the
// end yields empty Results with valid totals. pageSize must be positive;
// otherwise an empty Result is returned.
func Resolve(entries []ranking.Entry, page, pageSize int, player string) Result {
	res := Result{TotalPlayers: len(entries), Results: []ranking.Entry{}}
	if pageSize <= 0 {
		return res
	}
	res.TotalPages = len(entries) / pageSize
	if len(entries)%pageSize != 0 {
		res.TotalPages++
	}

	if row, ok := ranking.Find(entries, player); ok {
		res.PlayerRow = &row
		if page == AutoPage {
			page = (row.Rank-1)/pageSize + 1
		}
	}
	if page == AutoPage {
		page = 1
	}
	res.Page = page

	if page < 1 || page > res.TotalPages {
		return res
	}
	offset := (page - 1) * pageSize
	end := min(offset+pageSize, len(entries))
	res.Results = entries[offset:end]
	return res
}
