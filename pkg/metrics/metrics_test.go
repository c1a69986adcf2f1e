package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "bsn")
				So(manager.subsystem, ShouldEqual, "pgm")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithCountBuckets([]float64{5}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.videosProcessed.WithLabelValues(StageProposals).Inc()

			Convey("Then collectors should use the custom names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_videos_processed_total")
			})
		})

		Convey("When empty option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "bsn")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording per-video outcomes", func() {
			before := testutil.ToFloat64(globalManager.videosProcessed.WithLabelValues(StageFeatures))
			RecordVideoProcessed(StageFeatures)
			RecordVideoError(StageFeatures, "read")
			RecordVideoLatency(StageFeatures, 3.5)
			RecordStageDuration(StageFeatures, 120)

			Convey("Then the counters move", func() {
				after := testutil.ToFloat64(globalManager.videosProcessed.WithLabelValues(StageFeatures))
				So(after-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.videoErrors.WithLabelValues(StageFeatures, "read")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording generator and soft-NMS outcomes", func() {
			before := testutil.ToFloat64(globalManager.proposalsPadded)
			RecordProposalsGenerated(42)
			RecordProposalsPadded(7)
			RecordProposalsPadded(0)
			RecordGTMatchSkipped("no_annotations")
			RecordSoftNMSKept(101)

			Convey("Then padding is accumulated and zero is ignored", func() {
				So(testutil.ToFloat64(globalManager.proposalsPadded)-before, ShouldEqual, 7)
			})
		})

		Convey("When publishing a shard layout", func() {
			UpdateShards([]int{3, 3, 5})

			Convey("Then count and sizes are exported", func() {
				So(testutil.ToFloat64(globalManager.shardCount), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.shardSize.WithLabelValues("2")), ShouldEqual, 5)
			})

			Convey("And a smaller layout replaces the previous one", func() {
				UpdateShards([]int{4})
				So(testutil.ToFloat64(globalManager.shardCount), ShouldEqual, 1)
				So(testutil.CollectAndCount(globalManager.shardSize), ShouldEqual, 1)
			})
		})
	})
}

func TestWriteTextfile(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordVideoProcessed(StagePostProcess)

		Convey("When writing a textfile", func() {
			path := filepath.Join(t.TempDir(), "pgm.prom")
			err := WriteTextfile(path)

			Convey("Then the file holds the exposition format", func() {
				So(err, ShouldBeNil)
				data, readErr := os.ReadFile(path)
				So(readErr, ShouldBeNil)
				So(strings.Contains(string(data), "bsn_pgm_videos_processed_total"), ShouldBeTrue)
			})
		})

		Convey("When the path is empty", func() {
			err := WriteTextfile("")

			Convey("Then an export error is returned", func() {
				So(errors.Is(err, ErrExportFailed), ShouldBeTrue)
			})
		})

		Convey("When the registry is requested", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}

func TestRegisterRuntimeCollectors(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		Convey("When runtime collectors are registered twice", func() {
			RegisterRuntimeCollectors()
			RegisterRuntimeCollectors()

			Convey("Then Go runtime metrics are gathered once", func() {
				families, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				count := 0
				for _, f := range families {
					if f.GetName() == "go_goroutines" {
						count++
					}
				}
				So(count, ShouldEqual, 1)
			})
		})
	})
}
