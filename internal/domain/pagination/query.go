package pagination

import "errors"

// ErrInvalidQuery is returned for page or pageSize values out of range.
var ErrInvalidQuery = errors.New("invalid leaderboard query")

// Query selects one page of a leaderboard.
type Query struct {
	// Page is 1-based; AutoPage locates Player's page.
	Page int
	// PageSize of 0 uses the configured default; larger than the maximum is capped.
	PageSize int
	Level    int
	Player   string
}
