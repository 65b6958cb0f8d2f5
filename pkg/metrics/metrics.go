package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// KVS metrics
	KVOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krill_kv_operations_total",
			Help: "Total number of key-value store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	KVOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "krill_kv_operation_duration_seconds",
			Help:    "Key-value store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Aggregate store metrics
	AggregatesCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "krill_aggregates_cached",
			Help: "Number of aggregates currently held in the in-memory cache",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krill_commands_total",
			Help: "Total number of commands processed by effect (init, success, error, no-op, concurrent-modification)",
		},
		[]string{"effect"},
	)

	CommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "krill_command_duration_seconds",
			Help:    "Time taken to process a command end to end, including persistence",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsAppendedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "krill_events_appended_total",
			Help: "Total number of events appended across all aggregates",
		},
	)

	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "krill_snapshots_total",
			Help: "Total number of snapshots written",
		},
	)

	RecoverRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krill_recover_runs_total",
			Help: "Total number of recover() runs by outcome",
		},
		[]string{"outcome"},
	)

	// Signer metrics
	SignerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krill_signer_operations_total",
			Help: "Total number of signer dispatcher operations by backend, operation and result",
		},
		[]string{"backend", "operation", "result"},
	)

	SignerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "krill_signer_operation_duration_seconds",
			Help:    "Signer dispatcher operation duration in seconds by backend and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

func init() {
	prometheus.MustRegister(KVOperationsTotal)
	prometheus.MustRegister(KVOperationDuration)
	prometheus.MustRegister(AggregatesCached)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(EventsAppendedTotal)
	prometheus.MustRegister(SnapshotsTotal)
	prometheus.MustRegister(RecoverRunsTotal)
	prometheus.MustRegister(SignerOperationsTotal)
	prometheus.MustRegister(SignerOperationDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
