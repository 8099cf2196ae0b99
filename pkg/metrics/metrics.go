package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Kernel metrics
	EventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awesim_events_dispatched_total",
			Help: "Total number of events dispatched by LP type",
		},
		[]string{"lp_type"},
	)

	// Scheduler metrics
	WorkunitsScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "awesim_workunits_scheduled_total",
			Help: "Total number of workunits handed to workers",
		},
	)

	WorkunitsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "awesim_workunits_completed_total",
			Help: "Total number of workunit completions processed",
		},
	)

	TasksCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "awesim_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
	)

	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "awesim_jobs_completed_total",
			Help: "Total number of jobs completed",
		},
	)

	WorkQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "awesim_work_queue_depth",
			Help: "Workunits waiting for an eligible worker",
		},
	)

	ClientQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "awesim_client_queue_depth",
			Help: "Workers waiting for an eligible workunit",
		},
	)

	// Data movement metrics
	BytesTransferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awesim_bytes_transferred_total",
			Help: "Simulated bytes moved over the network by direction",
		},
		[]string{"direction"},
	)

	NetworkTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awesim_network_transfers_total",
			Help: "Simulated network transfers by label",
		},
		[]string{"label"},
	)

	// Wall-clock metrics
	TraceLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awesim_trace_load_duration_seconds",
			Help:    "Wall-clock time spent loading the workload traces",
			Buckets: prometheus.DefBuckets,
		},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "awesim_run_duration_seconds",
			Help:    "Wall-clock time spent driving the event loop",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsDispatched,
		WorkunitsScheduled,
		WorkunitsCompleted,
		TasksCompleted,
		JobsCompleted,
		WorkQueueDepth,
		ClientQueueDepth,
		BytesTransferred,
		NetworkTransfers,
		TraceLoadDuration,
		RunDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer starts the metrics HTTP server on the given address
func StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}

// Timer measures wall-clock durations for histogram observations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
