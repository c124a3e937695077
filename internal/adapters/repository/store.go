// Package repository defines the score store interface and its implementations.
package repository

import (
	"context"

	"github.com/okian/leaderboard/internal/domain/model"
)

// Store is durable keyed storage of score records.
//
// All writes happen through WithinPlayer, which gives exclusive,
// transactional access to every record of one player. Reads outside of it
// take no per-player lock and may be momentarily stale.
type Store interface {
	// WithinPlayer runs fn with exclusive access to the records of playerKey.
	// Writes made through tx become visible atomically when fn returns nil
	// and are discarded otherwise. A detected race surfaces as ErrConflict.
	WithinPlayer(ctx context.Context, playerKey string, fn func(tx PlayerTx) error) error

	// RankLevel returns every record at level ordered by score desc,
	// submittedAt asc, id asc.
	RankLevel(ctx context.Context, level int) ([]model.ScoreRecord, error)

	// ListAll returns every record ordered by playerName, level.
	ListAll(ctx context.Context) ([]model.ScoreRecord, error)

	// Get returns the record with id or ErrNotFound.
	Get(ctx context.Context, id uint64) (model.ScoreRecord, error)

	// ClearAll removes every record and reports how many were removed.
	ClearAll(ctx context.Context) (int64, error)

	// Stats counts records and distinct players.
	Stats(ctx context.Context) (Stats, error)

	// Ping reports ErrUnavailable when the backing storage cannot be reached.
	Ping(ctx context.Context) error

	Close() error
}

// PlayerTx reads and writes the records of a single player inside
// Store.WithinPlayer. Records passed in get their PlayerKey set to the
// scope's key.
type PlayerTx interface {
	// Get returns the player's record at level or ErrNotFound.
	Get(ctx context.Context, level int) (model.ScoreRecord, error)
	// Levels returns the player's records with from <= level <= to, ordered by level.
	Levels(ctx context.Context, from, to int) ([]model.ScoreRecord, error)
	// Sum adds the scores of the player's records with from <= level <= to.
	Sum(ctx context.Context, from, to int) (int, error)
	// Insert creates rec and assigns its ID.
	Insert(ctx context.Context, rec *model.ScoreRecord) error
	// Update writes rec.Score and rec.SubmittedAt to the record with rec.ID.
	Update(ctx context.Context, rec model.ScoreRecord) error
	// Upsert inserts rec or overwrites score and submittedAt of the existing
	// record with the same level.
	Upsert(ctx context.Context, rec *model.ScoreRecord) error
}

// Stats summarizes store contents.
type Stats struct {
	Records int64 `json:"records"`
	Players int64 `json:"players"`
}
