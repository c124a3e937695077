package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	queue "github.com/okian/leaderboard/internal/adapters/mq/queue"
	worker "github.com/okian/leaderboard/internal/adapters/mq/worker"
	model "github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/submission"
	logging "github.com/okian/leaderboard/pkg/logger"
)

type mockQueue struct {
	jobs      chan queue.Job
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 16)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(j queue.Job) {
	mq.jobs <- j
}

type mockSubmitter struct {
	mu     sync.Mutex
	seen   []model.Submission
	errors map[string]error
	delay  time.Duration
}

func newMockSubmitter() *mockSubmitter {
	return &mockSubmitter{errors: make(map[string]error)}
}

func (ms *mockSubmitter) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	if ms.delay > 0 {
		time.Sleep(ms.delay)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.seen = append(ms.seen, sub)
	if err, ok := ms.errors[sub.PlayerName]; ok {
		return model.ScoreRecord{}, err
	}
	return model.ScoreRecord{PlayerName: sub.PlayerName, Level: sub.Level, Score: sub.Score}, nil
}

func (ms *mockSubmitter) count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.seen)
}

// doneRecorder collects the outcome of each job.
type doneRecorder struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
}

func (d *doneRecorder) job(name string, level, score int) queue.Job {
	d.wg.Add(1)
	return queue.Job{
		Submission: model.Submission{PlayerName: name, Level: level, Score: score},
		BatchID:    "batch-1",
		EnqueuedAt: time.Now(),
		Done: func(err error) {
			d.mu.Lock()
			d.errs = append(d.errs, err)
			d.mu.Unlock()
			d.wg.Done()
		},
	}
}

func (d *doneRecorder) wait(t *testing.T) {
	ch := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		sub := newMockSubmitter()

		convey.Convey("When creating a worker with options", func() {
			w := worker.NewInMemoryWorker(q, sub, worker.WithName("test-worker"), worker.WithLogger(logging.Named("test")))

			convey.Convey("Then it should be created successfully", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When jobs are processed", func() {
			w := worker.NewInMemoryWorker(q, sub)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go w.Run(ctx)

			rec := &doneRecorder{}
			invalid := &submission.ValidationError{Field: "score", Message: "must be between 1 and 1000000"}
			failure := errors.New("disk gone")
			sub.errors["bad"] = invalid
			sub.errors["broken"] = failure

			q.add(rec.job("alice", 1, 100))
			q.add(rec.job("bad", 1, 0))
			q.add(rec.job("broken", 2, 50))
			rec.wait(t)

			convey.Convey("Then every job is applied and reports its outcome", func() {
				convey.So(sub.count(), convey.ShouldEqual, 3)
				convey.So(rec.errs, convey.ShouldHaveLength, 3)
				convey.So(rec.errs[0], convey.ShouldBeNil)
				convey.So(errors.Is(rec.errs[1], submission.ErrValidation), convey.ShouldBeTrue)
				convey.So(rec.errs[2], convey.ShouldEqual, failure)
			})
		})

		convey.Convey("When the queue is closed", func() {
			w := worker.NewInMemoryWorker(q, sub)
			go w.Run(context.Background())
			_ = q.Close()

			convey.Convey("Then the worker exits", func() {
				select {
				case <-w.Done():
				case <-time.After(2 * time.Second):
					t.Fatal("worker did not exit")
				}
			})
		})

		convey.Convey("When the worker is shut down", func() {
			w := worker.NewInMemoryWorker(q, sub)
			go w.Run(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			err := w.Shutdown(ctx)

			convey.Convey("Then it stops without error and a second shutdown is safe", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		sub := newMockSubmitter()

		convey.Convey("When created without an explicit worker count", func() {
			p := worker.NewPool(0, q, sub)

			convey.Convey("Then it picks a positive default", func() {
				convey.So(p.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When it drains a batch and shuts down", func() {
			p := worker.NewPool(4, q, sub)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			p.Start(ctx)

			rec := &doneRecorder{}
			for i := 0; i < 12; i++ {
				q.add(rec.job(fmt.Sprintf("player-%d", i), i%5+1, (i+1)*100))
			}
			rec.wait(t)

			err := p.Shutdown(context.Background())

			convey.Convey("Then all jobs were applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Processed(), convey.ShouldEqual, 12)
				convey.So(p.Active(), convey.ShouldEqual, 0)
				convey.So(sub.count(), convey.ShouldEqual, 12)
			})
		})

		convey.Convey("When shutdown outlives its context", func() {
			sub.delay = 300 * time.Millisecond
			p := worker.NewPool(1, q, sub)
			p.Start(context.Background())

			rec := &doneRecorder{}
			q.add(rec.job("slow", 1, 10))
			time.Sleep(50 * time.Millisecond)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			err := p.Shutdown(ctx)
			rec.wait(t)

			convey.Convey("Then it reports the timeout", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}
