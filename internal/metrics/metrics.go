// Package metrics registers the Prometheus collectors the ingestion core
// exposes on /metrics, the way cmd/metrics-server registers its
// counters in init().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	JobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ingest_jobs_enqueued_total", Help: "Jobs enqueued by type"},
		[]string{"type"},
	)
	JobsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ingest_jobs_claimed_total", Help: "Jobs claimed by a worker"},
	)
	JobClaimLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "ingest_job_claim_latency_seconds", Help: "Time from enqueue to claim"},
	)
	JobsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ingest_jobs_failed_total", Help: "Jobs that reached a terminal failure"},
		[]string{"reason"},
	)
	EnrichmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "ingest_enrichment_duration_seconds", Help: "Per-chunk enrichment stage duration"},
		[]string{"stage"},
	)
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ingest_queue_depth", Help: "Jobs currently queued"},
	)
	ProgressSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ingest_progress_subscribers", Help: "Active progress-bus subscribers"},
	)
	ProgressDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ingest_progress_events_dropped_total", Help: "Progress events dropped due to a slow subscriber"},
	)
)

func init() {
	prometheus.MustRegister(
		JobsEnqueued,
		JobsClaimed,
		JobClaimLatency,
		JobsFailed,
		EnrichmentDuration,
		QueueDepth,
		ProgressSubscribers,
		ProgressDropped,
	)
}

// Handler returns the promhttp handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
