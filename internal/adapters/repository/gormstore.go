package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

const (
	defaultBusyTimeout   = 5 * time.Second
	defaultMaxOpenConns  = 8
	defaultSlowThreshold = 200 * time.Millisecond

	memoryPath = ":memory:"
)

// GormStore is a Store backed by a SQLite database through gorm.
//
// Transactions begin with BEGIN IMMEDIATE, so two writers for the same
// player never interleave their read-compare-write. A writer that cannot
// take the lock within the busy timeout gets ErrConflict.
type GormStore struct {
	db            *gorm.DB
	path          string
	busyTimeout   time.Duration
	maxOpenConns  int
	slowThreshold time.Duration
	log           logger.Logger
}

// OpenGorm opens (creating if needed) the SQLite database at path and
// migrates the player_scores table.
func OpenGorm(ctx context.Context, path string, opts ...GormOption) (*GormStore, error) {
	s := &GormStore{
		path:          path,
		busyTimeout:   defaultBusyTimeout,
		maxOpenConns:  defaultMaxOpenConns,
		slowThreshold: defaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("store")
	}
	if path == "" {
		return nil, fmt.Errorf("open store: empty database path: %w", ErrUnavailable)
	}

	var dsn string
	if path == memoryPath {
		// Every connection to :memory: is a separate database.
		s.maxOpenConns = 1
		dsn = fmt.Sprintf("file::memory:?_txlock=immediate&_busy_timeout=%d", s.busyTimeout.Milliseconds())
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			s.log.Info(ctx, "database file not found, creating it", logger.String("path", path))
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w: %w", ErrUnavailable, err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
			path, s.busyTimeout.Milliseconds())
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newGormLog(s.log, s.slowThreshold),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", classify(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", classify(err))
	}
	sqlDB.SetMaxOpenConns(s.maxOpenConns)

	if err := db.WithContext(ctx).AutoMigrate(&model.ScoreRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate store: %w", classify(err))
	}
	s.db = db

	s.log.Info(ctx, "score store opened",
		logger.String("path", path),
		logger.Duration("busy_timeout", s.busyTimeout),
		logger.Int("max_open_conns", s.maxOpenConns))
	return s, nil
}

// WithinPlayer implements Store.WithinPlayer with one database transaction.
func (s *GormStore) WithinPlayer(ctx context.Context, playerKey string, fn func(tx PlayerTx) error) error {
	if playerKey == "" {
		return ErrInvalidKey
	}
	defer observe("within_player", time.Now())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx, key: playerKey})
	})
	return classify(err)
}

// RankLevel implements Store.RankLevel using idx_level_rank.
func (s *GormStore) RankLevel(ctx context.Context, level int) ([]model.ScoreRecord, error) {
	defer observe("rank_level", time.Now())

	var recs []model.ScoreRecord
	err := s.db.WithContext(ctx).
		Where("level = ?", level).
		Order("score DESC").
		Order("submitted_at ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("rank level %d: %w", level, classify(err))
	}
	return recs, nil
}

// ListAll implements Store.ListAll.
func (s *GormStore) ListAll(ctx context.Context) ([]model.ScoreRecord, error) {
	defer observe("list_all", time.Now())

	var recs []model.ScoreRecord
	err := s.db.WithContext(ctx).
		Order("player_name ASC").
		Order("level ASC").
		Order("id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list all: %w", classify(err))
	}
	return recs, nil
}

// Get implements Store.Get.
func (s *GormStore) Get(ctx context.Context, id uint64) (model.ScoreRecord, error) {
	defer observe("get", time.Now())

	var rec model.ScoreRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return model.ScoreRecord{}, fmt.Errorf("get %d: %w", id, classify(err))
	}
	return rec, nil
}

// ClearAll implements Store.ClearAll.
func (s *GormStore) ClearAll(ctx context.Context) (int64, error) {
	defer observe("clear_all", time.Now())

	res := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.ScoreRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear all: %w", classify(res.Error))
	}
	return res.RowsAffected, nil
}

// Stats implements Store.Stats.
func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx).Model(&model.ScoreRecord{})
	if err := db.Count(&st.Records).Error; err != nil {
		return Stats{}, fmt.Errorf("count records: %w", classify(err))
	}
	if err := s.db.WithContext(ctx).Model(&model.ScoreRecord{}).Distinct("player_key").Count(&st.Players).Error; err != nil {
		return Stats{}, fmt.Errorf("count players: %w", classify(err))
	}
	return st, nil
}

// Ping implements Store.Ping.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormTx is the PlayerTx of one GormStore transaction.
type gormTx struct {
	db  *gorm.DB
	key string
}

func (t *gormTx) scoped(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Model(&model.ScoreRecord{}).Where("player_key = ?", t.key)
}

func (t *gormTx) Get(ctx context.Context, level int) (model.ScoreRecord, error) {
	var rec model.ScoreRecord
	if err := t.scoped(ctx).Where("level = ?", level).Take(&rec).Error; err != nil {
		return model.ScoreRecord{}, classify(err)
	}
	return rec, nil
}

func (t *gormTx) Levels(ctx context.Context, from, to int) ([]model.ScoreRecord, error) {
	var recs []model.ScoreRecord
	err := t.scoped(ctx).
		Where("level BETWEEN ? AND ?", from, to).
		Order("level ASC").
		Find(&recs).Error
	if err != nil {
		return nil, classify(err)
	}
	return recs, nil
}

func (t *gormTx) Sum(ctx context.Context, from, to int) (int, error) {
	var total int
	err := t.scoped(ctx).
		Select("COALESCE(SUM(score), 0)").
		Where("level BETWEEN ? AND ?", from, to).
		Scan(&total).Error
	if err != nil {
		return 0, classify(err)
	}
	return total, nil
}

func (t *gormTx) Insert(ctx context.Context, rec *model.ScoreRecord) error {
	rec.ID = 0
	rec.PlayerKey = t.key
	if err := t.db.WithContext(ctx).Create(rec).Error; err != nil {
		return classify(err)
	}
	return nil
}

func (t *gormTx) Update(ctx context.Context, rec model.ScoreRecord) error {
	res := t.db.WithContext(ctx).
		Model(&model.ScoreRecord{}).
		Where("id = ? AND player_key = ?", rec.ID, t.key).
		Updates(map[string]interface{}{
			"score":        rec.Score,
			"submitted_at": rec.SubmittedAt,
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) Upsert(ctx context.Context, rec *model.ScoreRecord) error {
	rec.ID = 0
	rec.PlayerKey = t.key
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_key"}, {Name: "level"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "submitted_at"}),
	}).Create(rec).Error
	if err != nil {
		return classify(err)
	}
	return nil
}

// classify maps driver errors onto the store's sentinel kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrInvalidKey), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, driver.ErrBadConn):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB, sqlite3.ErrCorrupt,
			sqlite3.ErrReadonly, sqlite3.ErrFull:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}

// isConflict reports whether err is a lock or uniqueness race.
func isConflict(err error) bool {
	return errors.Is(classify(err), ErrConflict)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreOperation(op, float64(time.Since(start).Microseconds())/1000)
}
