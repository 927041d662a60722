package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueCounter   = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_enqueued_total", Help: "Total enqueued jobs"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_completed_total", Help: "Jobs completed successfully"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_jobs_failed_total", Help: "Jobs that ended in the failed state"})
	ProviderCalls    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_provider_calls_total", Help: "Outbound AI provider calls"}, []string{"provider"})
	ProviderErrors   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pipeline_provider_errors_total", Help: "Failed AI provider calls"}, []string{"provider"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_rate_limit_rejects_total", Help: "Requests rejected by rate limiter"})
	LeasesReclaimed  = prometheus.NewCounter(prometheus.CounterOpts{Name: "pipeline_leases_reclaimed_total", Help: "Expired job leases returned to their ready queue"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pipeline_queue_depth", Help: "Ready queue depth across queues"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "pipeline_jobs_inflight", Help: "Jobs currently leased by workers"})
	SearchDuration   = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_search_duration_seconds",
		Help:    "End-to-end semantic search latency including query embedding",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler exposes /metrics with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueCounter,
			JobsCompleted,
			JobsFailed,
			ProviderCalls,
			ProviderErrors,
			RateLimitRejects,
			LeasesReclaimed,
			QueueDepthGauge,
			InFlightGauge,
			SearchDuration,
		)
	})
	return promhttp.Handler()
}
