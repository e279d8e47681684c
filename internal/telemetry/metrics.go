package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsCreated         = prometheus.NewCounter(prometheus.CounterOpts{Name: "chat_jobs_created_total", Help: "Chat jobs created"})
	JobsFinished        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "chat_jobs_finished_total", Help: "Chat jobs reaching a terminal status"}, []string{"status"})
	RepeatedCompletions = prometheus.NewCounter(prometheus.CounterOpts{Name: "chat_jobs_repeated_completions_total", Help: "Completions received for jobs already terminal"})
	JobsReaped          = prometheus.NewCounter(prometheus.CounterOpts{Name: "chat_jobs_reaped_total", Help: "Jobs evicted by the retention sweep"})
	DispatchFailures    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "chat_dispatch_failures_total", Help: "Engine dispatches that failed before the engine accepted them"}, []string{"reason"})
	CallbacksReceived   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "chat_callbacks_total", Help: "Engine callbacks by response code"}, []string{"code"})
	RateLimitRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "chat_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	EngineLatency       = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_engine_request_seconds",
		Help:    "Latency of requests to the workflow engine",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13},
	}, []string{"kind"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsCreated,
			JobsFinished,
			RepeatedCompletions,
			JobsReaped,
			DispatchFailures,
			CallbacksReceived,
			RateLimitRejects,
			EngineLatency,
		)
	})
	return promhttp.Handler()
}
