// Package worker applies queued import jobs through the submission processor.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/leaderboard/internal/adapters/mq/queue"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/submission"
	"github.com/okian/leaderboard/pkg/logger"
	"github.com/okian/leaderboard/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2 // multiplier for runtime.NumCPU()
	poolShutdownTimeout     = 30 * time.Second
)

// Submitter applies a single submission.
type Submitter interface {
	Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker without draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for jobs from an in-process queue.
type InMemoryWorker struct {
	queue     Queue
	submitter Submitter
	name      string
	active    *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, submitter Submitter, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		submitter: submitter,
		name:      "worker",
		active:    new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			_ = w.process(ctx, j)
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown signals the worker to stop and waits for it.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process applies one job. Validation failures are expected in bulk
// imports and are logged at warn level.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	w.active.Add(1)
	defer func() {
		w.active.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	_, err := w.submitter.Submit(ctx, j.Submission)
	if j.Done != nil {
		j.Done(err)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, submission.ErrValidation):
		metrics.RecordErrorByComponent("worker", "validation")
		w.logger.Warn(ctx, "rejected imported submission",
			logger.String("batch", j.BatchID),
			logger.String("player", j.Submission.PlayerName),
			logger.Error(err))
	default:
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "submit")
		w.logger.Error(ctx, "failed to apply imported submission",
			logger.String("batch", j.BatchID),
			logger.String("player", j.Submission.PlayerName),
			logger.Int("level", j.Submission.Level),
			logger.Error(err))
	}
	return err
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	active    atomic.Int64
	shutdown  chan struct{}
	processed atomic.Int64
	logger    logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 picks a default from
// the number of CPUs.
func NewPool(workerCount int, q Queue, submitter Submitter) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Named("worker-pool"),
	}
	counting := submitterFunc(func(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
		rec, err := submitter.Submit(ctx, sub)
		p.processed.Add(1)
		return rec, err
	})
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, counting, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i].active = &p.active
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)

	return p
}

type submitterFunc func(ctx context.Context, sub model.Submission) (model.ScoreRecord, error)

func (f submitterFunc) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	return f(ctx, sub)
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Active returns how many workers are applying a job right now.
func (p *Pool) Active() int64 { return p.active.Load() }

// Processed returns how many jobs the pool has applied.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			active := int(p.active.Load())
			metrics.UpdateWorkerActiveCount(active)
			metrics.UpdateWorkerIdleCount(len(p.workers) - active)
		}
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them
// until ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
