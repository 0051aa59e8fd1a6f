package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search and data-source Prometheus metrics.
var (
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveysearch",
			Name:      "submissions_total",
			Help:      "Search submissions by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "surveysearch",
			Name:      "chain_stage_duration_seconds",
			Help:      "Query chain stage duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode", "stage"},
	)

	ClassificationGapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveysearch",
			Name:      "classification_gaps_total",
			Help:      "Matched fields with no owning dataset",
		},
		[]string{"field"},
	)

	SourceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveysearch",
			Name:      "source_requests_total",
			Help:      "Feature Source requests by dataset and status",
		},
		[]string{"dataset", "status"},
	)

	PrefetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveysearch",
			Name:      "prefetch_total",
			Help:      "Attribute prefetches by dataset and status",
		},
		[]string{"dataset", "status"},
	)

	SnapshotRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "surveysearch",
			Name:      "snapshot_records",
			Help:      "Records in the current attribute snapshot",
		},
		[]string{"dataset"},
	)

	SnapshotStoreTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "surveysearch",
			Name:      "snapshot_store_total",
			Help:      "Snapshot persistence operations",
		},
		[]string{"op", "result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "surveysearch",
			Name:      "active_sessions",
			Help:      "Sessions currently held by the registry",
		},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers the search metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		SubmissionsTotal,
		StageDuration,
		ClassificationGapsTotal,
		SourceRequestsTotal,
		PrefetchTotal,
		SnapshotRecords,
		SnapshotStoreTotal,
		ActiveSessions,
	)
	searchMetricsRegistered = true
}
