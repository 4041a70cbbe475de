package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "factloop"

// Metrics exposes Prometheus collectors for fact-check sessions.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	oracleCalls        *prometheus.CounterVec
	oracleDuration     *prometheus.HistogramVec
	sessionRounds      prometheus.Histogram
	sessionOutcomes    *prometheus.CounterVec
	degradations       *prometheus.CounterVec
	duplicateQuestions prometheus.Counter
	activeSessions     prometheus.Gauge
	evidenceRecords    prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the metrics instance registered with the global Prometheus registry.
// Collectors are created once so repeated calls do not panic on duplicate registration.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Registration errors panic, matching promauto.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		oracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "calls_total",
			Help:      "Oracle calls by stage and outcome.",
		}, []string{"stage", "status"}),
		oracleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "call_duration_seconds",
			Help:      "Latency of oracle calls by stage.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		sessionRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rounds",
			Help:      "Completed refinement rounds per finished session.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		sessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Finished sessions by termination reason.",
		}, []string{"outcome"}),
		degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "degradations_total",
			Help:      "Sessions that continued without check points or evidence.",
		}, []string{"component"}),
		duplicateQuestions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "duplicate_questions_total",
			Help:      "Follow-up questions flagged as repeats of earlier ones.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently in progress.",
		}),
		evidenceRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "records",
			Help:      "Evidence records retrieved per claim.",
			Buckets:   []float64{0, 1, 5, 10, 20, 40},
		}),
	}

	reg.MustRegister(
		m.oracleCalls,
		m.oracleDuration,
		m.sessionRounds,
		m.sessionOutcomes,
		m.degradations,
		m.duplicateQuestions,
		m.activeSessions,
		m.evidenceRecords,
	)

	return m
}

// ObserveOracleCall records one oracle call for a stage (draft, evaluate, synthesize)
func (m *Metrics) ObserveOracleCall(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.oracleCalls.WithLabelValues(stage, status).Inc()
	m.oracleDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveSession records a finished session
func (m *Metrics) ObserveSession(outcome string, rounds int) {
	if m == nil {
		return
	}
	m.sessionOutcomes.WithLabelValues(outcome).Inc()
	m.sessionRounds.Observe(float64(rounds))
}

// IncDegradation counts a session continuing without an upstream's output
func (m *Metrics) IncDegradation(component string) {
	if m == nil {
		return
	}
	m.degradations.WithLabelValues(component).Inc()
}

// IncDuplicateQuestion counts a repeated follow-up question
func (m *Metrics) IncDuplicateQuestion() {
	if m == nil {
		return
	}
	m.duplicateQuestions.Inc()
}

// SessionStarted marks a session as active
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded marks a session as no longer active
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ObserveEvidence records how many evidence records a retrieval produced
func (m *Metrics) ObserveEvidence(n int) {
	if m == nil {
		return
	}
	m.evidenceRecords.Observe(float64(n))
}
