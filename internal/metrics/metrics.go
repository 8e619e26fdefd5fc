// Package metrics declares the Prometheus series for the observability
// surface in spec §6, generalizing the teacher's internal/metrics from
// a single HTTP job executor to the Scheduler/Queue/Worker/Pipeline
// triad.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler

	TasksCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "tasks_created_total",
		Help:      "Total DueWork occurrences enqueued by the scheduler (timed fires and run-now); task creation itself is not counted.",
	})

	SchedulerLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orbiter",
		Name:      "scheduler_lag_seconds",
		Help:      "Duration of the scheduler's Enqueue call for one fired occurrence; the delay between run_at and lease is not recorded here.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	EventsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "events_ingested_total",
		Help:      "Total events consumed from the bus, by outcome.",
	}, []string{"outcome"})

	// Work queue

	DueWorkLeaseLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orbiter",
		Name:      "due_work_lease_latency_seconds",
		Help:      "Time between DueWork creation and a successful lease.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	LeasesTakenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "leases_taken_total",
		Help:      "Total DueWork rows successfully leased.",
	})

	LeasesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "leases_expired_total",
		Help:      "Total leases recovered after expiry without a committed Run.",
	})

	// Runs

	RunsStartedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "runs_started_total",
		Help:      "Total pipeline executions started.",
	})

	RunsFinishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "runs_finished_total",
		Help:      "Total runs finished, by outcome.",
	}, []string{"outcome"})

	PipelineDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orbiter",
		Name:      "pipeline_duration_seconds",
		Help:      "Wall-clock duration of one pipeline execution.",
		Buckets:   prometheus.DefBuckets,
	})

	PipelineStepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orbiter",
		Name:      "pipeline_step_duration_seconds",
		Help:      "Duration of one pipeline step invocation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"uses", "outcome"})

	// Reaper / worker lifecycle

	ReaperRescuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "reaper_rescued_total",
		Help:      "Total stale leases handled by the reaper.",
	}, []string{"action"})

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orbiter",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	// HTTP

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orbiter",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbiter",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		TasksCreatedTotal,
		SchedulerLag,
		EventsIngestedTotal,
		DueWorkLeaseLatency,
		LeasesTakenTotal,
		LeasesExpiredTotal,
		RunsStartedTotal,
		RunsFinishedTotal,
		PipelineDuration,
		PipelineStepDuration,
		ReaperRescuedTotal,
		WorkerStartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

func NewServer(addr string, checker healthChecker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", checker.LivenessHandler)
	mux.HandleFunc("/readyz", checker.ReadinessHandler)
	return &http.Server{Addr: addr, Handler: mux}
}

// healthChecker is satisfied by *health.Checker; declared here (instead
// of imported) so metrics does not depend on the health package,
// matching the teacher's pattern of small local interfaces at package
// boundaries.
type healthChecker interface {
	LivenessHandler(w http.ResponseWriter, r *http.Request)
	ReadinessHandler(w http.ResponseWriter, r *http.Request)
}
