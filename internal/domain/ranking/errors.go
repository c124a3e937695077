package ranking

import "errors"

// ErrInvalidLevel is returned for levels outside 0..5.
var ErrInvalidLevel = errors.New("invalid leaderboard level")
