// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spiderfetch"

// Fetch flows.
const (
	FlowInfo  = "info"
	FlowLinks = "links"
)

// Fetch results.
const (
	ResultSuccess   = "success"
	ResultDegraded  = "degraded"
	ResultError     = "error"
	ResultCancelled = "cancelled"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	// Task metrics
	TasksCreated  prometheus.Counter
	TasksFinished *prometheus.CounterVec
	TaskDuration  *prometheus.HistogramVec
	QueueDepth    prometheus.Gauge
	TasksRunning  prometheus.Gauge
	TasksPruned   prometheus.Counter

	// Downloader metrics
	EngineErrors prometheus.Counter
	FilesMoved   prometheus.Counter
	MoveFailures prometheus.Counter

	// Fetch metrics
	Fetches *prometheus.CounterVec

	// Notification metrics
	EventsDropped prometheus.Counter

	gatherer    prometheus.Gatherer
	lastDropped atomic.Uint64
}

// New creates all application metrics and registers them with reg.
// A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	factory := promauto.With(reg)

	return &Metrics{
		TasksCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "created_total",
			Help:      "Total number of tasks added to the queue",
		}),
		TasksFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "finished_total",
			Help:      "Total number of tasks that reached a terminal status",
		}, []string{"status"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Histogram of task execution time in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of pending tasks plus the running one",
		}),
		TasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "running",
			Help:      "Number of tasks currently executing",
		}),
		TasksPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "pruned_total",
			Help:      "Total number of finished tasks removed from the registry",
		}),
		EngineErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "engine_errors_total",
			Help:      "Total number of failures reported by the extraction engine",
		}),
		FilesMoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "files_moved_total",
			Help:      "Total number of artifacts moved to their destination",
		}),
		MoveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "downloader",
			Name:      "move_failures_total",
			Help:      "Total number of artifacts that could not be moved",
		}),
		Fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Total number of info and link fetches by result",
		}, []string{"flow", "result"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dropped_total",
			Help:      "Total number of progress events dropped on a full buffer",
		}),
		gatherer: reg,
	}
}

// Handler returns the Prometheus HTTP handler for the registry the metrics live in.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordTaskCreated increments the tasks created counter.
func (m *Metrics) RecordTaskCreated() {
	if m == nil {
		return
	}

	m.TasksCreated.Inc()
}

// RecordTaskFinished records a task reaching status after running for d.
// Tasks cancelled while pending report a zero duration and are not observed.
func (m *Metrics) RecordTaskFinished(status string, d time.Duration) {
	if m == nil {
		return
	}

	m.TasksFinished.WithLabelValues(status).Inc()

	if d > 0 {
		m.TaskDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

// SetQueue sets the queue depth and running gauges.
func (m *Metrics) SetQueue(depth int, running bool) {
	if m == nil {
		return
	}

	m.QueueDepth.Set(float64(depth))

	if running {
		m.TasksRunning.Set(1)
	} else {
		m.TasksRunning.Set(0)
	}
}

// RecordPruned adds n removed tasks.
func (m *Metrics) RecordPruned(n int) {
	if m == nil {
		return
	}

	m.TasksPruned.Add(float64(n))
}

// RecordEngineError increments the engine errors counter.
func (m *Metrics) RecordEngineError() {
	if m == nil {
		return
	}

	m.EngineErrors.Inc()
}

// RecordFileMoved increments the moved artifacts counter.
func (m *Metrics) RecordFileMoved() {
	if m == nil {
		return
	}

	m.FilesMoved.Inc()
}

// RecordMoveFailure increments the failed moves counter.
func (m *Metrics) RecordMoveFailure() {
	if m == nil {
		return
	}

	m.MoveFailures.Inc()
}

// RecordFetch records the result of an info or link fetch.
func (m *Metrics) RecordFetch(flow, result string) {
	if m == nil {
		return
	}

	m.Fetches.WithLabelValues(flow, result).Inc()
}

// SetEventsDropped advances the dropped events counter to the dispatcher total.
func (m *Metrics) SetEventsDropped(total uint64) {
	if m == nil {
		return
	}

	if last := m.lastDropped.Swap(total); total > last {
		m.EventsDropped.Add(float64(total - last))
	}
}
