package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NOTE: metrics are registered globally, so every binary exposes the full set
// (control plane metrics read zero in the data plane and vice versa).

// namespace prefixes every metric (e.g., mimir_...).
const namespace = "mimir"

// lowLatencyBuckets resolves 1ms steps for data plane calls; the default
// buckets start at 5ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .250, .500, 1}

var (
	// -------------------------------------------------------------------------
	// CONTROL PLANE (HTTP)
	// -------------------------------------------------------------------------

	// ControlPlaneReqDuration measures the latency of HTTP requests.
	// Metric: mimir_control_plane_http_handling_seconds
	ControlPlaneReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_handling_seconds",
		Help:      "Time taken to handle HTTP requests in Control Plane",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	// ControlPlaneReqTotal counts HTTP requests by route pattern and status.
	// Metric: mimir_control_plane_http_requests_total
	ControlPlaneReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "control_plane",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests in Control Plane",
	}, []string{"method", "path", "code"})

	// -------------------------------------------------------------------------
	// DATA PLANE (gRPC)
	// -------------------------------------------------------------------------

	// DataPlaneGrpcDuration measures the latency of data plane RPCs.
	// code is the application error code, "OK" on success.
	// Metric: mimir_data_plane_grpc_handling_seconds
	DataPlaneGrpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_handling_seconds",
		Help:      "Time taken to handle data plane RPCs",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "code"})

	// DataPlaneGrpcTotal counts data plane RPCs.
	// Metric: mimir_data_plane_grpc_requests_total
	DataPlaneGrpcTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_plane",
		Name:      "grpc_requests_total",
		Help:      "Total data plane RPCs",
	}, []string{"method", "code"})

	// -------------------------------------------------------------------------
	// CONFIG CACHE
	// -------------------------------------------------------------------------

	ConfigCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config_cache",
		Name:      "hits_total",
		Help:      "Config lookups served from the local cache",
	})

	ConfigCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config_cache",
		Name:      "misses_total",
		Help:      "Config lookups that went to the store (absent or expired entry)",
	})

	// ConfigCacheInvalidations counts wholesale flushes.
	// source: update (local UpdateConfig), broadcast (peer via Redis), manual (admin endpoint).
	ConfigCacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "config_cache",
		Name:      "invalidations_total",
		Help:      "Total full cache invalidations",
	}, []string{"source"})

	// ConfigCacheItems approximates the number of cached callers. Otter tracks
	// entry count, not byte size.
	ConfigCacheItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "config_cache",
		Name:      "items_count",
		Help:      "Current number of entries in the config cache",
	})

	// -------------------------------------------------------------------------
	// INGESTION
	// -------------------------------------------------------------------------

	// IngestBatchesTotal counts CollectEvents calls.
	// outcome: accepted, malformed, invalid, storage_failed.
	IngestBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Total event batches by outcome",
	}, []string{"outcome"})

	IngestEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total analytics events persisted",
	})

	IngestBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "batch_size",
		Help:      "Number of events per accepted batch",
		Buckets:   []float64{1, 5, 10, 25, 50, 75, 100},
	})

	// IngestNotificationsTotal counts NATS ingest notices by outcome (published, failed).
	IngestNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "notifications_total",
		Help:      "Ingest notifications published to the message bus",
	}, []string{"outcome"})

	// -------------------------------------------------------------------------
	// EXPERIMENTS
	// -------------------------------------------------------------------------

	// AssignmentsTotal counts GetAssignment outcomes.
	// outcome: existing, created, recovered (lost insert race), not_found,
	// inactive, failed.
	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "experiment",
		Name:      "assignments_total",
		Help:      "Experiment assignment lookups by outcome",
	}, []string{"outcome"})

	// -------------------------------------------------------------------------
	// DATABASE POOL
	// -------------------------------------------------------------------------

	// DatabasePoolConnections reports pool connections by state (total, idle, in_use, max).
	DatabasePoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Database pool connections by state",
	}, []string{"state"})

	// The pgx pool exposes cumulative counters; they are mirrored as gauges
	// because the monitor samples absolute values.

	DatabasePoolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count",
		Help:      "Cumulative successful connection acquisitions",
	})

	DatabasePoolAcquireSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds",
		Help:      "Cumulative time spent acquiring connections",
	})

	DatabasePoolEmptyAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_empty_acquire_count",
		Help:      "Cumulative acquisitions that had to wait for a connection",
	})
)
