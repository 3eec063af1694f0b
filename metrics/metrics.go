// ABOUTME: Prometheus counters for the deal pipeline
// ABOUTME: Nil-safe recorders so callers can run without a registry
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "closer"

// Metrics holds every pipeline counter. A nil *Metrics records nothing.
type Metrics struct {
	StageTransitions            *prometheus.CounterVec
	TransitionConflicts         prometheus.Counter
	DealsClosed                 *prometheus.CounterVec
	MilestonesGenerated         prometheus.Counter
	MilestoneGenerationFailures prometheus.Counter
	AuditWriteFailures          prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StageTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Committed stage transitions by deal type and target stage.",
		}, []string{"deal_type", "stage"}),
		TransitionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transition_conflicts_total",
			Help:      "Stage transitions abandoned after exhausting version-conflict retries.",
		}),
		DealsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deals_closed_total",
			Help:      "Deals entering a terminal stage by outcome.",
		}, []string{"outcome"}),
		MilestonesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestones_generated_total",
			Help:      "Milestones created from deal type templates.",
		}),
		MilestoneGenerationFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "milestone_generation_failures_total",
			Help:      "Milestone batches that failed after the stage transition committed.",
		}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Best-effort activity writes that failed or timed out.",
		}),
	}
}

func (m *Metrics) TransitionCommitted(dealType, stage string) {
	if m == nil {
		return
	}
	m.StageTransitions.WithLabelValues(dealType, stage).Inc()
}

func (m *Metrics) TransitionConflict() {
	if m == nil {
		return
	}
	m.TransitionConflicts.Inc()
}

// DealClosed counts a deal reaching a won or lost stage.
func (m *Metrics) DealClosed(outcome string) {
	if m == nil {
		return
	}
	m.DealsClosed.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MilestonesCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MilestonesGenerated.Add(float64(n))
}

func (m *Metrics) MilestoneGenerationFailed() {
	if m == nil {
		return
	}
	m.MilestoneGenerationFailures.Inc()
}

func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.AuditWriteFailures.Inc()
}
