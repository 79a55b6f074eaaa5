// Package metrics holds the Prometheus collectors for the reassignment service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crm"

// Evaluation outcomes.
const (
	OutcomeReassigned    = "reassigned"
	OutcomeNoLead        = "lead_not_found"
	OutcomeTerminal      = "terminal_status"
	OutcomeNoCandidate   = "no_candidate"
	OutcomeSameRep       = "same_rep"
	OutcomeLowConfidence = "low_confidence"
	OutcomeConflict      = "version_conflict"
	OutcomeError         = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	evaluations      *prometheus.CounterVec
	confidence       prometheus.Histogram
	candidates       prometheus.Histogram
	sweepLeads       prometheus.Counter
	actionsScheduled *prometheus.CounterVec
	actionsDispatch  prometheus.Counter
	actionsRequeued  prometheus.Counter
	actionsFailed    prometheus.Counter
	agentTasks       *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		evaluations: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reassign",
			Name:      "evaluations_total",
			Help:      "Reassignment evaluations by outcome",
		}, []string{"outcome", "trigger"}),
		confidence: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reassign",
			Name:      "confidence",
			Help:      "Confidence of the winning candidate",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		candidates: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reassign",
			Name:      "candidates",
			Help:      "Eligible candidates per evaluation",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		sweepLeads: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reassign",
			Name:      "sweep_leads_total",
			Help:      "Stale leads examined by the sweep",
		}),
		actionsScheduled: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "actions_scheduled_total",
			Help:      "Scheduled actions created by kind",
		}, []string{"kind"}),
		actionsDispatch: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "actions_dispatched_total",
			Help:      "Actions claimed and published to workers",
		}),
		actionsRequeued: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "actions_redelivered_total",
			Help:      "Dispatched actions returned to pending after the redelivery window",
		}),
		actionsFailed: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "actions_failed_total",
			Help:      "Actions failed by workers or after exhausting attempts",
		}),
		agentTasks: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "tasks_total",
			Help:      "Agent tasks by agent and final status",
		}, []string{"agent", "status"}),
	}
}

func (m *Metrics) Evaluation(outcome, trigger string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(outcome, trigger).Inc()
}

func (m *Metrics) Ranked(candidates int, confidence float64) {
	if m == nil {
		return
	}
	m.candidates.Observe(float64(candidates))
	if candidates > 0 {
		m.confidence.Observe(confidence)
	}
}

func (m *Metrics) SweepLeads(n int) {
	if m == nil {
		return
	}
	m.sweepLeads.Add(float64(n))
}

func (m *Metrics) ActionScheduled(kind string) {
	if m == nil {
		return
	}
	m.actionsScheduled.WithLabelValues(kind).Inc()
}

func (m *Metrics) ActionsDispatched(n int) {
	if m == nil {
		return
	}
	m.actionsDispatch.Add(float64(n))
}

func (m *Metrics) ActionsRequeued(n int) {
	if m == nil {
		return
	}
	m.actionsRequeued.Add(float64(n))
}

func (m *Metrics) ActionsFailed(n int) {
	if m == nil {
		return
	}
	m.actionsFailed.Add(float64(n))
}

func (m *Metrics) AgentTask(agent, status string) {
	if m == nil {
		return
	}
	m.agentTasks.WithLabelValues(agent, status).Inc()
}
