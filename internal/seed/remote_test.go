package seed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leaderboard/internal/adapters/http/api"
	"github.com/okian/leaderboard/internal/adapters/repository"
	service "github.com/okian/leaderboard/internal/app"
	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/seed"
	"github.com/okian/leaderboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newServer(t *testing.T) (*httptest.Server, *service.Service) {
	svc := service.New(service.WithWorkerCount(2), service.WithQueueSize(64))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
	})
	return srv, svc
}

func TestRunRemote(t *testing.T) {
	Convey("Given a running server", t, func() {
		srv, svc := newServer(t)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		client := seed.NewClient(srv.URL, 5*time.Second)

		Convey("A seeded run submits and verifies across several pages", func() {
			report, err := seed.RunRemote(ctx, client, seed.RemoteConfig{Players: 150, Workers: 8, Seed: 11})
			So(err, ShouldBeNil)
			So(report.Failed, ShouldEqual, 0)
			So(report.Entries, ShouldEqual, 150)
			So(report.Seed, ShouldEqual, int64(11))
			So(report.Submissions, ShouldBeGreaterThanOrEqualTo, 150)
		})

		Convey("Leftover players fail verification unless the run clears first", func() {
			_, err := svc.Submit(ctx, model.Submission{PlayerName: "Stranger", Level: 1, Score: 100})
			So(err, ShouldBeNil)

			_, err = seed.RunRemote(ctx, client, seed.RemoteConfig{Players: 5, Workers: 2, Seed: 4})
			So(errors.Is(err, seed.ErrMismatch), ShouldBeTrue)

			_, err = seed.RunRemote(ctx, client, seed.RemoteConfig{Players: 5, Workers: 2, Seed: 4, Clear: true})
			So(err, ShouldBeNil)
		})

		Convey("The client reads an empty board as no entries", func() {
			entries, err := client.Leaderboard(ctx, model.AggregateLevel)
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)
		})

		Convey("Invalid submissions are not retried", func() {
			_, err := client.Submit(ctx, model.Submission{PlayerName: "", Level: 1, Score: 1})
			So(errors.Is(err, seed.ErrStatus), ShouldBeTrue)
		})
	})

	Convey("Given a server that is not healthy", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := seed.RunRemote(context.Background(), seed.NewClient(srv.URL, time.Second), seed.RemoteConfig{Players: 1})
		So(errors.Is(err, seed.ErrUnhealthy), ShouldBeTrue)
	})

	Convey("Given a server that throttles", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":7,"playerName":"Alpha","level":1,"score":100}`))
		}))
		defer srv.Close()

		rec, err := seed.NewClient(srv.URL, time.Second).Submit(context.Background(),
			model.Submission{PlayerName: "Alpha", Level: 1, Score: 100})
		So(err, ShouldBeNil)
		So(rec.ID, ShouldEqual, uint64(7))
		So(calls.Load(), ShouldEqual, int32(3))
	})
}

func TestRunLocal(t *testing.T) {
	Convey("Given a sqlite store", t, func() {
		ctx := context.Background()
		store, err := repository.OpenGorm(ctx, t.TempDir()+"/seed.db")
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("A local run applies and verifies", func() {
			report, err := seed.RunLocal(ctx, store, seed.LocalConfig{Players: 20, Seed: 9})
			So(err, ShouldBeNil)
			So(report.Entries, ShouldEqual, 20)

			Convey("A second run with clear starts over", func() {
				report, err := seed.RunLocal(ctx, store, seed.LocalConfig{Players: 10, Seed: 10, Clear: true})
				So(err, ShouldBeNil)
				So(report.Entries, ShouldEqual, 10)
			})
		})
	})
}
