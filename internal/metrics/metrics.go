// Package metrics holds pacwrap's prometheus instrumentation, in the
// variable-block-of-collectors style common to cluster daemons. Unlike a
// daemon that polls its store on a ticker, pacwrap is a one-shot CLI
// invocation, so these are pushed inline by the components that produce
// the numbers rather than collected by a separate poller.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacwrap_transactions_total",
			Help: "Total number of per-container transactions by mode and result",
		},
		[]string{"container", "mode", "result"},
	)

	TransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacwrap_transaction_duration_seconds",
			Help:    "Duration of a transaction state machine stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"},
	)

	DedupFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacwrap_dedup_files_total",
			Help: "Total number of files processed by the dedup engine by action",
		},
		[]string{"container", "action"},
	)

	DedupBytesSaved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacwrap_dedup_bytes_saved_total",
			Help: "Total bytes not duplicated on disk due to hardlinking",
		},
	)

	AgentEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacwrap_agent_events_total",
			Help: "Total number of agent protocol events observed by type",
		},
		[]string{"container", "event"},
	)

	InstancesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacwrap_instances_total",
			Help: "Number of live container agent instances",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TransactionsTotal,
		TransactionDuration,
		DedupFilesTotal,
		DedupBytesSaved,
		AgentEventsTotal,
		InstancesGauge,
	)
}

// Timer measures an elapsed duration and observes it into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// ObserveDuration records the elapsed time against obs (e.g.
// TransactionDuration.WithLabelValues("commit")).
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(time.Since(t.start).Seconds())
}

// Serve starts a blocking HTTP server exposing /metrics, used only when the
// reference driver is invoked with --metrics-addr for long fleet syncs.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
