package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline and query Prometheus metrics.
var (
	ExtractionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_outcomes_total",
			Help:      "Eligibility extractions by final state",
		},
		[]string{"provider", "state"},
	)

	ExtractionAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_attempts",
			Help:      "Provider calls spent per extraction, corrections included",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		},
		[]string{"provider"},
	)

	IngestRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_records_total",
			Help:      "Registry records seen by the ingestion pass, by outcome",
		},
		[]string{"outcome"},
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	SearchDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches answered keyword-only because vector retrieval failed",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers extraction, ingest and search metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExtractionOutcomesTotal)
	prometheus.MustRegister(ExtractionAttempts)
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchDegradedTotal)
	pipelineMetricsRegistered = true
}
