package service

import (
	"time"

	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/submission"
	"github.com/okian/leaderboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the score store. Without it Start opens a MemoryStore.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of import workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the import queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many idempotency keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPageSizes sets the default and maximum leaderboard page sizes.
func WithPageSizes(def, maxSize int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultPageSize = def
		}
		if maxSize > 0 {
			s.maxPageSize = maxSize
		}
		if s.defaultPageSize > s.maxPageSize {
			s.defaultPageSize = s.maxPageSize
		}
	}
}

// WithPopulatePlayers sets how many players Populate generates by default.
func WithPopulatePlayers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.populatePlayers = n
		}
	}
}

// WithSeed fixes the generator seed used by Populate.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}

// WithStatsInterval sets how often store and system gauges are refreshed.
func WithStatsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statsInterval = d
		}
	}
}

// WithProcessorOptions passes options to the submission processor.
func WithProcessorOptions(opts ...submission.Option) Option {
	return func(s *Service) {
		s.processorOpts = append(s.processorOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
