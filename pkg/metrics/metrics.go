package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tenant/table metrics
	TenantsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_tenants_total",
			Help: "Total number of registered tenants",
		},
	)

	TablesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_tables_total",
			Help: "Total number of tables across all tenants",
		},
	)

	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_objects_total",
			Help: "Total number of live objects in the allocator",
		},
	)

	// RPC metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grainstore_requests_total",
			Help: "Total number of RPCs dispatched, by opcode and response status",
		},
		[]string{"opcode", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grainstore_request_duration_seconds",
			Help:    "End-to-end RPC duration in seconds, from dispatch to commit or pushback",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)

	// Task / scheduler metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grainstore_tasks_total",
			Help: "Number of tasks currently in each state",
		},
		[]string{"state"},
	)

	TasksPushedBack = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grainstore_tasks_pushed_back_total",
			Help: "Total number of tasks converted to a pushback response",
		},
	)

	TaskCyclesConsumed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grainstore_task_cycles_consumed",
			Help:    "Cumulative cycles consumed by a task over its whole lifetime",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
		},
	)

	TickLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grainstore_tick_latency_seconds",
			Help:    "Wall-clock duration of one scheduler tick (receive + execute + transmit)",
			Buckets: prometheus.DefBuckets,
		},
	)

	TickReadyQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_tick_ready_queue_depth",
			Help: "Ready-queue depth, set after each task is popped in the execute phase and by the periodic collector",
		},
	)

	TickWaitingSetDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_tick_waiting_set_depth",
			Help: "Waiting-set depth, set when a task is parked and by the periodic collector",
		},
	)

	// Extension metrics
	ExtensionsLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grainstore_extensions_loaded_total",
			Help: "Total number of (tenant, name) extension installs across the process",
		},
	)

	ExtensionInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grainstore_extension_invocations_total",
			Help: "Total number of extension invocations by name and outcome",
		},
		[]string{"name", "outcome"},
	)

	// Replica client (pushback replay) metrics
	ReplayedPushbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grainstore_replayed_pushbacks_total",
			Help: "Total number of pushback continuations replayed by the client scheduler",
		},
	)

	ReplayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grainstore_replay_latency_seconds",
			Help:    "Time taken to locally replay a pushed-back task against the seeded read-set",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(TenantsTotal)
	prometheus.MustRegister(TablesTotal)
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksPushedBack)
	prometheus.MustRegister(TaskCyclesConsumed)
	prometheus.MustRegister(TickLatency)
	prometheus.MustRegister(TickReadyQueueDepth)
	prometheus.MustRegister(TickWaitingSetDepth)
	prometheus.MustRegister(ExtensionsLoaded)
	prometheus.MustRegister(ExtensionInvocationsTotal)
	prometheus.MustRegister(ReplayedPushbacksTotal)
	prometheus.MustRegister(ReplayLatency)
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

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
