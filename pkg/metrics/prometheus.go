// Package metrics provides Prometheus metrics for the proposal generation pipeline.
package metrics

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage labels shared by the pipeline.
const (
	StageProposals   = "proposals"
	StageFeatures    = "features"
	StagePostProcess = "postprocess"
)

// Manager holds the Prometheus collectors for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	countBuckets     []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Per-video throughput
	videosProcessed *prometheus.CounterVec
	videoErrors     *prometheus.CounterVec
	videoLatency    *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec

	// Proposal generator
	proposalsGenerated prometheus.Histogram
	proposalsPadded    prometheus.Counter
	gtMatchSkipped     *prometheus.CounterVec

	// Soft-NMS
	softNMSKept prometheus.Histogram

	// Dispatcher
	shardCount prometheus.Gauge
	shardSize  *prometheus.GaugeVec

	// Monitoring endpoint
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bsn",
		subsystem:        "pgm",
		histogramBuckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		countBuckets:     []float64{0, 1, 10, 50, 100, 101, 200, 500, 1000, 2000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.videosProcessed = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "videos_processed_total",
		Help:        "Videos that completed a pipeline stage",
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.videoErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "video_errors_total",
		Help:        "Videos skipped because a stage failed on them",
		ConstLabels: m.constLabels,
	}, []string{"stage", "reason"})

	m.videoLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "video_latency_milliseconds",
		Help:        "Per-video processing time in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_duration_milliseconds",
		Help:        "Wall time of a whole stage in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"stage"})

	m.proposalsGenerated = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "proposals_generated",
		Help:        "Candidates emitted by boundary gating before padding",
		Buckets:     m.countBuckets,
		ConstLabels: m.constLabels,
	})

	m.proposalsPadded = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "proposals_padded_total",
		Help:        "Random candidates added to reach top-K",
		ConstLabels: m.constLabels,
	})

	m.gtMatchSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "gt_match_skipped_total",
		Help:        "Videos persisted without match_iou/match_ioa",
		ConstLabels: m.constLabels,
	}, []string{"reason"})

	m.softNMSKept = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "softnms_kept",
		Help:        "Proposals kept per video by soft-NMS",
		Buckets:     m.countBuckets,
		ConstLabels: m.constLabels,
	})

	m.shardCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "shard_count",
		Help:        "Shards used by the most recent dispatch",
		ConstLabels: m.constLabels,
	})

	m.shardSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "shard_size",
		Help:        "Videos assigned to each shard in the most recent dispatch",
		ConstLabels: m.constLabels,
	}, []string{"shard"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Requests served by the monitoring endpoint",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "Monitoring endpoint latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordVideoProcessed counts one successful video for stage.
func RecordVideoProcessed(stage string) {
	globalManager.videosProcessed.WithLabelValues(stage).Inc()
}

// RecordVideoError counts one failed video for stage.
func RecordVideoError(stage, reason string) {
	globalManager.videoErrors.WithLabelValues(stage, reason).Inc()
}

// RecordVideoLatency observes the time spent on one video.
func RecordVideoLatency(stage string, latencyMs float64) {
	globalManager.videoLatency.WithLabelValues(stage).Observe(latencyMs)
}

// RecordStageDuration observes the wall time of a whole stage.
func RecordStageDuration(stage string, durationMs float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(durationMs)
}

// RecordProposalsGenerated observes the pre-padding candidate count.
func RecordProposalsGenerated(count int) {
	globalManager.proposalsGenerated.Observe(float64(count))
}

// RecordProposalsPadded adds n padded candidates.
func RecordProposalsPadded(n int) {
	if n > 0 {
		globalManager.proposalsPadded.Add(float64(n))
	}
}

// RecordGTMatchSkipped counts a video whose ground-truth enrichment was skipped.
func RecordGTMatchSkipped(reason string) {
	globalManager.gtMatchSkipped.WithLabelValues(reason).Inc()
}

// RecordSoftNMSKept observes how many proposals soft-NMS kept.
func RecordSoftNMSKept(count int) {
	globalManager.softNMSKept.Observe(float64(count))
}

// UpdateShards publishes the shard layout of a dispatch.
func UpdateShards(sizes []int) {
	globalManager.shardSize.Reset()
	globalManager.shardCount.Set(float64(len(sizes)))
	for i, n := range sizes {
		globalManager.shardSize.WithLabelValues(strconv.Itoa(i)).Set(float64(n))
	}
}

// RecordHTTPRequest counts one monitoring request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes the latency of one monitoring request.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

var runtimeOnce sync.Once //nolint:gochecknoglobals // guards one-time collector registration

// RegisterRuntimeCollectors adds Go runtime and process collectors to the
// custom registry. Later calls are no-ops.
func RegisterRuntimeCollectors() {
	runtimeOnce.Do(func() {
		customRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty textfile path", ErrExportFailed)
	}
	if err := prometheus.WriteToTextfile(path, customRegistry); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}
