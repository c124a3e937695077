package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/leaderboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a key is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "batch-1")

			Convey("Then it is reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And recording it again reports it as seen", func() {
				So(d.SeenAndRecord(ctx, "batch-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded key is unrecorded", func() {
			d.SeenAndRecord(ctx, "batch-1")
			d.Unrecord(ctx, "batch-1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "batch-1"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is reset", func() {
			for i := 0; i < 10; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("batch-%d", i))
			}
			d.Reset()

			Convey("Then every key is forgotten", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "batch-3"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"a", "b", "c"} {
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("When a fourth key arrives", func() {
			So(d.SeenAndRecord(ctx, "d"), ShouldBeFalse)

			Convey("Then the oldest key is evicted and the rest remain", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(-1))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("batch-%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "batch-0"), ShouldBeTrue)
		})
	})

	Convey("Given a deduper with a TTL", t, func() {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := func() time.Time { return now }
		d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(time.Minute), dedupe.WithClock(clock))
		d.SeenAndRecord(ctx, "old")
		now = now.Add(30 * time.Second)
		d.SeenAndRecord(ctx, "new")

		Convey("When the first key outlives the TTL", func() {
			now = now.Add(45 * time.Second)

			Convey("Then it is treated as unseen and the younger key is kept", func() {
				So(d.SeenAndRecord(ctx, "old"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "new"), ShouldBeTrue)
			})
		})
	})
}

func TestInMemoryDeduperConcurrent(t *testing.T) {
	Convey("Given many goroutines racing on the same keys", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			fresh = map[string]int{}
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					key := fmt.Sprintf("batch-%d", i)
					if !d.SeenAndRecord(context.Background(), key) {
						mu.Lock()
						fresh[key]++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Then each key is new exactly once", func() {
			So(len(fresh), ShouldEqual, 100)
			for _, n := range fresh {
				So(n, ShouldEqual, 1)
			}
		})
	})
}
