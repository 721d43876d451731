package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssessmentMetrics exposes counters/histograms for the triage request path.
type AssessmentMetrics struct {
	assessmentsTotal *prometheus.CounterVec
	scoringLatency   prometheus.Histogram
	distressTotal    *prometheus.CounterVec
}

func NewAssessmentMetrics(reg prometheus.Registerer) *AssessmentMetrics {
	m := &AssessmentMetrics{
		assessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "assessment",
			Name:      "completed_total",
			Help:      "Completed triage assessments",
		}, []string{"level", "path", "source"}),
		scoringLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "triage",
			Subsystem: "assessment",
			Name:      "pipeline_latency_seconds",
			Help:      "Latency of the score-classify-recommend pipeline",
			Buckets:   prometheus.DefBuckets,
		}),
		distressTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "distress",
			Name:      "signals_total",
			Help:      "Distress signals processed",
		}, []string{"decision"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.assessmentsTotal, m.scoringLatency, m.distressTotal)
	return m
}

func (m *AssessmentMetrics) ObserveAssessment(level int, path, source string) {
	if m == nil {
		return
	}
	m.assessmentsTotal.WithLabelValues(levelLabel(level), path, source).Inc()
}

func (m *AssessmentMetrics) ObservePipelineLatency(seconds float64) {
	if m == nil {
		return
	}
	m.scoringLatency.Observe(seconds)
}

func (m *AssessmentMetrics) ObserveDistressSignal(decision string) {
	if m == nil {
		return
	}
	m.distressTotal.WithLabelValues(decision).Inc()
}

// EscalationMetrics exposes counters for the escalation state machine.
type EscalationMetrics struct {
	eventsTotal     *prometheus.CounterVec
	resolutionTotal *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
}

func NewEscalationMetrics(reg prometheus.Registerer) *EscalationMetrics {
	m := &EscalationMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "escalation",
			Name:      "events_total",
			Help:      "Escalation events created",
		}, []string{"level"}),
		resolutionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "escalation",
			Name:      "resolutions_total",
			Help:      "Escalation events reaching a terminal state",
		}, []string{"outcome"}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "triage",
			Subsystem: "escalation",
			Name:      "deliveries_total",
			Help:      "Recipient delivery outcomes",
		}, []string{"role", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.resolutionTotal, m.deliveriesTotal)
	return m
}

func (m *EscalationMetrics) ObserveEventCreated(level int) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(levelLabel(level)).Inc()
}

func (m *EscalationMetrics) ObserveEventResolved(outcome string) {
	if m == nil {
		return
	}
	m.resolutionTotal.WithLabelValues(outcome).Inc()
}

func (m *EscalationMetrics) ObserveDelivery(role, status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(role, status).Inc()
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	case 4:
		return "4"
	default:
		return "unknown"
	}
}
