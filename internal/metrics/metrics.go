// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsrag"

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the service collectors.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec

	AnswerOutcomesTotal   *prometheus.CounterVec
	CacheLookupsTotal     *prometheus.CounterVec
	FallbackOutcomesTotal *prometheus.CounterVec

	IngestRunsTotal   *prometheus.CounterVec
	IngestRecords     prometheus.Gauge
	IndexVersion      prometheus.Gauge
	IndexChunks       prometheus.Gauge
	IndexSkippedTotal prometheus.Counter
}

// Default returns the process-wide collectors registered with the default
// Prometheus registry.
//
// Registration happens once, so repeated calls never panic with a duplicate
// collector error.
//
// Collectors:
//   - newsrag_http_requests_total{method,route,status}
//   - newsrag_http_request_duration_seconds{method,route}
//   - newsrag_answer_outcomes_total{outcome}
//   - newsrag_answer_cache_lookups_total{result}
//   - newsrag_fallback_outcomes_total{outcome}
//   - newsrag_ingest_runs_total{result}
//   - newsrag_ingest_corpus_records
//   - newsrag_index_snapshot_version
//   - newsrag_index_chunks
//   - newsrag_index_documents_skipped_total
func Default() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New registers a fresh set of collectors with reg. Tests pass a private
// registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}, []string{"method", "route"}),

		AnswerOutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "outcomes_total",
			Help:      "Answer generator outcomes",
		}, []string{"outcome"}), // answered, no_information, failed

		CacheLookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "answer",
			Name:      "cache_lookups_total",
			Help:      "Answer cache lookups by result",
		}, []string{"result"}), // hit, miss

		FallbackOutcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fallback",
			Name:      "outcomes_total",
			Help:      "Fallback agent outcomes",
		}, []string{"outcome"}),

		IngestRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Ingestion runs by result",
		}, []string{"result"}), // success, error, panic

		IngestRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "corpus_records",
			Help:      "Records in the corpus after the last ingestion run",
		}),

		IndexVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "snapshot_version",
			Help:      "Version of the published index snapshot",
		}),

		IndexChunks: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks",
			Help:      "Chunks in the published index snapshot",
		}),

		IndexSkippedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_skipped_total",
			Help:      "Documents skipped because chunking or embedding failed",
		}),
	}
}

// Nop returns collectors registered nowhere.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
