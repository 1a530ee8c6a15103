package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/3leaps/gocrack/pkg/taskstore"
)

const namespace = "gocrack"

// Metrics holds the Prometheus collectors for the coordinator and minions.
//
// Each Metrics owns its registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Coordinator
	HashesSubmitted prometheus.Counter
	TasksCreated    prometheus.Counter
	TasksClaimed    prometheus.Counter
	TasksSettled    *prometheus.CounterVec
	TasksCancelled  prometheus.Counter
	TasksRequeued   prometheus.Counter
	MinionsExpired  prometheus.Counter
	TasksByStatus   *prometheus.GaugeVec
	ActiveMinions   prometheus.Gauge

	// Minion
	Candidates     prometheus.Counter
	SlicesSearched *prometheus.CounterVec
}

// NewMetrics creates a metrics set labelled with service.
func NewMetrics(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry))

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: reg.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: reg.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		HashesSubmitted: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hashes_submitted_total",
			Help:      "Total number of hashes accepted for cracking",
		}),
		TasksCreated: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Total number of slice tasks created",
		}),
		TasksClaimed: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_claimed_total",
			Help:      "Total number of successful task claims",
		}),
		TasksSettled: reg.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_settled_total",
				Help:      "Total number of tasks moved to a terminal status by their minion",
			},
			[]string{"status"},
		),
		TasksCancelled: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_cancelled_siblings_total",
			Help:      "Total number of sibling tasks cancelled by a found result",
		}),
		TasksRequeued: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_requeued_total",
			Help:      "Total number of assigned tasks returned to pending",
		}),
		MinionsExpired: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "minions_expired_total",
			Help:      "Total number of minions disconnected for missing heartbeats",
		}),
		TasksByStatus: reg.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks",
				Help:      "Current number of tasks per status",
			},
			[]string{"status"},
		),
		ActiveMinions: reg.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_minions",
			Help:      "Current number of active minions",
		}),

		Candidates: reg.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_checked_total",
			Help:      "Total number of candidates hashed by this minion",
		}),
		SlicesSearched: reg.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slices_searched_total",
				Help:      "Total number of slices searched by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// HashSubmitted records one accepted hash and the tasks it produced.
func (m *Metrics) HashSubmitted(tasks int) {
	m.HashesSubmitted.Inc()
	m.TasksCreated.Add(float64(tasks))
}

// TaskClaimed records a successful claim.
func (m *Metrics) TaskClaimed() {
	m.TasksClaimed.Inc()
}

// TaskSettled records a task reaching status along with the siblings it cancelled.
func (m *Metrics) TaskSettled(status taskstore.Status, cancelled int) {
	m.TasksSettled.WithLabelValues(string(status)).Inc()
	m.TasksCancelled.Add(float64(cancelled))
}

// Requeued records tasks returned to pending.
func (m *Metrics) Requeued(n int) {
	m.TasksRequeued.Add(float64(n))
}

// Expired records minions dropped by the liveness sweep.
func (m *Metrics) Expired(n int) {
	m.MinionsExpired.Add(float64(n))
}

// ObserveState sets the task and minion gauges.
func (m *Metrics) ObserveState(counts map[taskstore.Status]int, activeMinions int) {
	for status, n := range counts {
		m.TasksByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	m.ActiveMinions.Set(float64(activeMinions))
}

// CandidatesChecked adds n hashed candidates.
func (m *Metrics) CandidatesChecked(n int) {
	m.Candidates.Add(float64(n))
}

// SliceSearched records the outcome of one slice search.
func (m *Metrics) SliceSearched(outcome string) {
	m.SlicesSearched.WithLabelValues(outcome).Inc()
}
