// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "talent_outreach"

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeEmpty     = "empty"
	OutcomeError     = "error"
	OutcomeThrottled = "throttled"
	OutcomeLocked    = "locked"
	OutcomeDryRun    = "dry_run"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	MatchRunsTotal      *prometheus.CounterVec
	MatchRunDuration    prometheus.Histogram
	CandidatesMatched   prometheus.Counter
	SchedulerRunsTotal  *prometheus.CounterVec
	FollowUpsCreated    *prometheus.CounterVec
	FollowUpsSkipped    prometheus.Counter
	DispatchesTotal     *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers every collector. A nil registerer means the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initMatchingMetrics(factory)
	m.initSchedulerMetrics(factory)
	m.initHTTPMetrics(factory)

	return m
}

func (m *Metrics) initMatchingMetrics(factory promauto.Factory) {
	m.MatchRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "runs_total",
			Help:      "Matching passes by outcome",
		},
		[]string{"outcome"},
	)

	m.MatchRunDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "run_duration_seconds",
			Help:      "Duration of a matching pass in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	m.CandidatesMatched = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matching",
			Name:      "candidates_matched_total",
			Help:      "Candidates returned by matching passes",
		},
	)
}

func (m *Metrics) initSchedulerMetrics(factory promauto.Factory) {
	m.SchedulerRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Follow-up scheduler runs by outcome",
		},
		[]string{"outcome"},
	)

	m.FollowUpsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "follow_ups_created_total",
			Help:      "Follow-up tasks created by task type",
		},
		[]string{"task_type"},
	)

	m.FollowUpsSkipped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "follow_ups_skipped_total",
			Help:      "Follow-up rules skipped for a candidate",
		},
	)

	m.DispatchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outreach",
			Name:      "dispatches_total",
			Help:      "Execute-outreach triggers by result",
		},
		[]string{"result"},
	)
}

func (m *Metrics) initHTTPMetrics(factory promauto.Factory) {
	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_code"},
	)
}

func (m *Metrics) MatchRun(outcome string, matched int, d time.Duration) {
	if m == nil {
		return
	}
	m.MatchRunsTotal.WithLabelValues(outcome).Inc()
	m.MatchRunDuration.Observe(d.Seconds())
	m.CandidatesMatched.Add(float64(matched))
}

func (m *Metrics) SchedulerRun(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FollowUpCreated(taskType string) {
	if m == nil {
		return
	}
	m.FollowUpsCreated.WithLabelValues(taskType).Inc()
}

func (m *Metrics) FollowUpSkipped() {
	if m == nil {
		return
	}
	m.FollowUpsSkipped.Inc()
}

func (m *Metrics) Dispatch(result string) {
	if m == nil {
		return
	}
	m.DispatchesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(method, path, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
