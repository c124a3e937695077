package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			labels := map[string]string{"env": "test"}
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithMetricsEnabled(false),
				WithConstLabels(labels),
				WithPrometheusRegistry(registry),
			)
			labels["env"] = "changed"

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.constLabels, ShouldResemble, map[string]string{"env": "test"})
			})

			Convey("Then collectors carry the namespace and labels", func() {
				manager.storeRecords.Set(3)
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				found := false
				for _, mf := range families {
					if mf.GetName() == "test_namespace_service_store_records" {
						found = true
						So(mf.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
						So(mf.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When invalid option values are given", func() {
			manager := NewManager(
				WithNamespace(""),
				WithConstLabels(nil),
				WithPrometheusRegistry(prometheus.NewRegistry()),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, defaultNamespace)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.constLabels, ShouldBeNil)
			})
		})
	})
}

func TestInit(t *testing.T) {
	Convey("Given metrics reinitialized from configuration", t, func() {
		defer Init()
		previous := GetRegistry()

		Convey("When a namespace and labels are set", func() {
			Init(WithNamespace("scores"), WithConstLabels(map[string]string{"instance": "a"}))
			UpdateStorePlayers(4)

			Convey("Then a fresh registry serves the renamed collectors", func() {
				So(GetRegistry(), ShouldNotEqual, previous)
				So(FullName("store_players"), ShouldEqual, "scores_service_store_players")
				v, err := Value("scores_service_store_players")
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 4)
			})
		})

		Convey("When metrics are disabled", func() {
			Init(WithMetricsEnabled(false))
			RecordConflictRetry()
			UpdateStoreRecords(9)

			Convey("Then recorders leave the collectors untouched", func() {
				So(testutil.ToFloat64(globalManager.conflictRetries), ShouldEqual, 0)
				v, err := Value(FullName("store_records"))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording submissions", func() {
			before := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeImproved))
			RecordSubmission(OutcomeImproved)
			RecordSubmission(OutcomeImproved)

			Convey("Then the outcome counter increases", func() {
				after := testutil.ToFloat64(globalManager.submissions.WithLabelValues(OutcomeImproved))
				So(after-before, ShouldEqual, 2)
			})
		})

		Convey("When recording conflict retries", func() {
			before := testutil.ToFloat64(globalManager.conflictRetries)
			RecordConflictRetry()

			Convey("Then the retry counter increases", func() {
				So(testutil.ToFloat64(globalManager.conflictRetries)-before, ShouldEqual, 1)
			})
		})

		Convey("When setting store gauges", func() {
			UpdateStoreRecords(42)
			UpdateStorePlayers(7)

			Convey("Then Value reads them back", func() {
				v, err := Value(FullName("store_records"))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 42)

				v, err = Value(FullName("store_players"))
				So(err, ShouldBeNil)
				So(v, ShouldEqual, 7)
			})
		})

		Convey("When recording clears", func() {
			before := testutil.ToFloat64(globalManager.storeCleared)
			RecordStoreCleared(5)
			RecordStoreCleared(0)

			Convey("Then only positive counts are added", func() {
				So(testutil.ToFloat64(globalManager.storeCleared)-before, ShouldEqual, 5)
			})
		})

		Convey("When recording the remaining collectors", func() {
			So(func() {
				RecordSubmitLatency(1.5)
				RecordImportAccepted()
				RecordImportDuplicate()
				RecordRankingLatency("0", 2)
				RecordQueryLatency(3)
				RecordStoreOperation("within_player", 1)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				UpdateQueueUtilization(0.1)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(4)
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(1)
				UpdateWorkerIdleCount(3)
				RecordWorkerProcessingLatency(5)
				RecordWorkerError()
				RecordHTTPRequest("/api/leaderboard", "GET", "200")
				RecordHTTPRequestDuration("/api/leaderboard", "GET", "200", 6)
				RecordRateLimited("/api/leaderboard")
				RecordErrorByComponent("store", "conflict")
				RecordErrorByEndpoint("/api/leaderboard", "POST", "validation")
				UpdateSystemMemoryUsage(1024)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("When reading an unknown metric", func() {
			_, err := Value("does_not_exist")

			Convey("Then ErrMetricNotFound is returned", func() {
				So(errors.Is(err, ErrMetricNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		So(GetRegistry(), ShouldNotBeNil)
		So(GetRegistry(), ShouldEqual, customRegistry)
	})
}
