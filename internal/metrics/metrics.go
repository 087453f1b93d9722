package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mentionwatch_poll_runs_total",
		Help: "Total mention poll passes",
	})
	PollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_poll_errors_total",
		Help: "Poll passes that failed, by kind",
	}, []string{"kind"})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mentionwatch_poll_duration_seconds",
		Help:    "Poll pass duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	MentionsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mentionwatch_mentions_ingested_total",
		Help: "Mentions appended to thread history and published",
	})
	MentionsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_mentions_skipped_total",
		Help: "Fetched records not emitted, by reason",
	}, []string{"reason"})
	WriteErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_write_errors_total",
		Help: "Failed facade operations, by operation and kind",
	}, []string{"op", "kind"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"cmd"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mentionwatch_command_errors_total",
		Help: "CLI command failures",
	}, []string{"cmd"})
)

func init() {
	prometheus.MustRegister(PollRuns, PollErrors, PollDuration, MentionsIngested, MentionsSkipped,
		WriteErrors, APIRetries, CommandRuns, CommandErrors)
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return r
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090"), falling
// back to METRICS_ADDR. Returns nil when no address is configured.
func StartServer(addr string) *http.Server {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// ObservePollDuration records a pass duration.
func ObservePollDuration(start time.Time) {
	PollDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncPollError(kind string) { PollErrors.WithLabelValues(kind).Inc() }
func IncSkipped(reason string) { MentionsSkipped.WithLabelValues(reason).Inc() }
func IncWriteError(op, kind string) { WriteErrors.WithLabelValues(op, kind).Inc() }
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
