// Package service wires the store, submission processor, ranking engine
// and import pipeline into the operations the HTTP API serves.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leaderboard/internal/adapters/mq/queue"
	"github.com/okian/leaderboard/internal/adapters/mq/worker"
	"github.com/okian/leaderboard/internal/adapters/repository"
	"github.com/okian/leaderboard/internal/domain/dedupe"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/pagination"
	"github.com/okian/leaderboard/internal/domain/ranking"
	"github.com/okian/leaderboard/internal/domain/submission"
	"github.com/okian/leaderboard/internal/seed"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

const (
	defaultQueueSize       = 10000
	defaultDedupeSize      = 50000
	defaultPageSize        = 10
	defaultMaxPageSize     = 100
	defaultPopulatePlayers = 50
	defaultStatsInterval   = 5 * time.Second
)

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	processor *submission.Processor
	engine    *ranking.Engine
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	workerCount     int
	queueSize       int
	dedupeSize      int
	defaultPageSize int
	maxPageSize     int
	populatePlayers int
	seed            int64
	statsInterval   time.Duration
	processorOpts   []submission.Option

	started   bool
	ownsStore bool
	stopCh    chan struct{}
	accepted  atomic.Int64

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		defaultPageSize: defaultPageSize,
		maxPageSize:     defaultMaxPageSize,
		populatePlayers: defaultPopulatePlayers,
		statsInterval:   defaultStatsInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.logger.Info(ctx, "starting leaderboard service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
		s.logger.Info(ctx, "using memory store")
	}
	s.stopCh = make(chan struct{})
	s.processor = submission.NewProcessor(s.store, s.processorOpts...)
	s.engine = ranking.NewEngine(s.store)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.processor)
	s.pool.Start(ctx)

	go s.statsLoop(ctx, s.stopCh, s.store)

	s.started = true
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the import queue and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping leaderboard service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "import workers did not drain", logger.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}
	if s.ownsStore {
		s.store = nil
		s.ownsStore = false
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

func (s *Service) running() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Submit applies one submission synchronously.
func (s *Service) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	if err := s.running(); err != nil {
		return model.ScoreRecord{}, err
	}
	return s.processor.Submit(ctx, sub)
}

// Leaderboard returns one page of the leaderboard for q.Level.
func (s *Service) Leaderboard(ctx context.Context, q pagination.Query) (pagination.Result, error) {
	if err := s.running(); err != nil {
		return pagination.Result{}, err
	}
	switch {
	case q.Page < 0:
		return pagination.Result{}, fmt.Errorf("%w: page must not be negative", pagination.ErrInvalidQuery)
	case q.PageSize < 0:
		return pagination.Result{}, fmt.Errorf("%w: pageSize must be positive", pagination.ErrInvalidQuery)
	case q.PageSize == 0:
		q.PageSize = s.defaultPageSize
	case q.PageSize > s.maxPageSize:
		q.PageSize = s.maxPageSize
	}

	start := time.Now()
	entries, err := s.engine.Rank(ctx, q.Level)
	if err != nil {
		return pagination.Result{}, err
	}
	res := pagination.Resolve(entries, q.Page, q.PageSize, q.Player)
	metrics.RecordQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	return res, nil
}

// Get returns the record with id.
func (s *Service) Get(ctx context.Context, id uint64) (model.ScoreRecord, error) {
	if err := s.running(); err != nil {
		return model.ScoreRecord{}, err
	}
	return s.store.Get(ctx, id)
}

// ListAll returns every stored record.
func (s *Service) ListAll(ctx context.Context) ([]model.ScoreRecord, error) {
	if err := s.running(); err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx)
}

// ClearAll removes every record and forgets all idempotency keys.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	if err := s.running(); err != nil {
		return 0, err
	}
	n, err := s.store.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	s.deduper.Reset()
	metrics.RecordStoreCleared(n)
	s.refreshStoreStats(ctx)
	s.logger.Info(ctx, "cleared all scores", logger.Int64("deleted", n))
	return n, nil
}

// Import queues subs for asynchronous application. A non-empty key makes
// the call idempotent: a repeated key reports duplicate and queues nothing.
// The batch is queued whole or not at all; ErrBusy means no room.
func (s *Service) Import(ctx context.Context, key string, subs []model.Submission) (accepted, duplicate bool, err error) {
	if err := s.running(); err != nil {
		return false, false, err
	}
	if key != "" && s.deduper.SeenAndRecord(ctx, key) {
		metrics.RecordImportDuplicate()
		s.logger.Debug(ctx, "duplicate import skipped", logger.String("key", key))
		return false, true, nil
	}

	batchID := key
	if batchID == "" {
		batchID = uuid.NewString()
	}
	if err := s.enqueue(ctx, batchID, subs, nil); err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		return false, false, err
	}
	metrics.RecordImportAccepted()
	s.accepted.Add(int64(len(subs)))
	s.logger.Info(ctx, "import accepted",
		logger.String("batch", batchID),
		logger.Int("submissions", len(subs)))
	return true, false, nil
}

func (s *Service) enqueue(ctx context.Context, batchID string, subs []model.Submission, done func(error)) error {
	jobs := make([]queue.Job, len(subs))
	for i, sub := range subs {
		jobs[i] = queue.Job{Submission: sub, BatchID: batchID, Done: done}
	}
	err := s.queue.EnqueueBatch(ctx, jobs)
	switch {
	case errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrClosed):
		return fmt.Errorf("%w: %d submissions: %w", ErrBusy, len(subs), err)
	case err != nil:
		return err
	}
	return nil
}

// Populate generates players random players and applies their submissions
// through the import pipeline, returning once all of them are applied.
// players <= 0 uses the configured default.
func (s *Service) Populate(ctx context.Context, players int) (seed.Summary, error) {
	if err := s.running(); err != nil {
		return seed.Summary{}, err
	}
	if players <= 0 {
		players = s.populatePlayers
	}
	subs, err := seed.NewGenerator(s.seed).Submissions(players)
	if err != nil {
		return seed.Summary{}, err
	}

	res := seed.Summary{Players: players, Submissions: len(subs)}
	batchID := "populate-" + uuid.NewString()
	chunk := s.queue.Capacity()

	var failed atomic.Int64
	for start := 0; start < len(subs); start += chunk {
		end := min(start+chunk, len(subs))

		var wg sync.WaitGroup
		wg.Add(end - start)
		done := func(err error) {
			if err != nil {
				failed.Add(1)
			}
			wg.Done()
		}
		if err := s.enqueue(ctx, batchID, subs[start:end], done); err != nil {
			return res, err
		}
		if err := wait(ctx, &wg); err != nil {
			return res, err
		}
	}

	res.Failed = int(failed.Load())
	s.refreshStoreStats(ctx)
	s.logger.Info(ctx, "populated leaderboard",
		logger.Int("players", res.Players),
		logger.Int("submissions", res.Submissions),
		logger.Int("failed", res.Failed))
	return res, nil
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ping checks that the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.running(); err != nil {
		return err
	}
	return s.store.Ping(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"defaultPageSize": s.defaultPageSize,
		"maxPageSize":     s.maxPageSize,
	}
	if !s.started {
		return stats
	}

	stats["queueLength"] = s.queue.Len(ctx)
	stats["activeWorkers"] = s.pool.Active()
	stats["processedJobs"] = s.pool.Processed()
	stats["acceptedJobs"] = s.accepted.Load()
	stats["idempotencyKeys"] = s.deduper.Size()
	if st, err := s.store.Stats(ctx); err == nil {
		stats["records"] = st.Records
		stats["players"] = st.Players
	} else {
		stats["storeError"] = err.Error()
	}
	if n, err := metrics.Value(metrics.FullName("submissions_total")); err == nil {
		stats["submissionsTotal"] = n
	}
	return stats
}

func (s *Service) statsLoop(ctx context.Context, stop <-chan struct{}, store repository.Store) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.publishStoreStats(ctx, store)
			updateSystemMetrics()
		}
	}
}

func (s *Service) refreshStoreStats(ctx context.Context) {
	s.publishStoreStats(ctx, s.store)
}

func (s *Service) publishStoreStats(ctx context.Context, store repository.Store) {
	st, err := store.Stats(ctx)
	if err != nil {
		s.logger.Debug(ctx, "store stats unavailable", logger.Error(err))
		return
	}
	metrics.UpdateStoreRecords(st.Records)
	metrics.UpdateStorePlayers(st.Players)
}

var lastNumGC atomic.Uint32

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	prev := lastNumGC.Swap(m.NumGC)
	if m.NumGC > prev {
		pause := m.PauseNs[(m.NumGC+255)%256]
		metrics.RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
	}
}
