package repository

import (
	"time"

	"github.com/okian/leaderboard/pkg/logger"
)

// MemoryOption applies a configuration option to the MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// GormOption applies a configuration option to the GormStore.
type GormOption func(*GormStore)

// WithBusyTimeout sets how long SQLite waits on a locked database before
// reporting a conflict.
func WithBusyTimeout(d time.Duration) GormOption {
	return func(s *GormStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) GormOption {
	return func(s *GormStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithSlowQueryThreshold sets the duration above which queries are logged as slow.
func WithSlowQueryThreshold(d time.Duration) GormOption {
	return func(s *GormStore) {
		if d > 0 {
			s.slowThreshold = d
		}
	}
}

// WithLogger routes gorm's own logging through log.
func WithLogger(log logger.Logger) GormOption {
	return func(s *GormStore) {
		if log != nil {
			s.log = log
		}
	}
}
