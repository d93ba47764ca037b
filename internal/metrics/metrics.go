// Package metrics exposes the engine's Prometheus instrumentation.
// All methods are nil-safe so tests and the demo command can run
// without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors.
type Metrics struct {
	prompts          *prometheus.CounterVec
	suppressed       *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	riskScore        prometheus.Histogram
	policyReloads    prometheus.Counter
	sweepFailures    prometheus.Counter
	directiveRetries prometheus.Counter
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		prompts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwarden_prompts_total",
			Help: "Prompt directives delivered, by trigger reason.",
		}, []string{"reason"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwarden_suppressed_total",
			Help: "Triggers refused by the consent store, by cause.",
		}, []string{"cause"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabwarden_decisions_total",
			Help: "Router decisions received, by action.",
		}, []string{"action"}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabwarden_risk_score",
			Help:    "Risk scores of delivered directives.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		policyReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabwarden_policy_reloads_total",
			Help: "Policy document reloads applied.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabwarden_sweep_failures_total",
			Help: "Tabs that failed re-evaluation during a policy sweep.",
		}),
		directiveRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabwarden_directive_retries_total",
			Help: "Directive deliveries that needed the retry attempt.",
		}),
	}
	reg.MustRegister(
		m.prompts, m.suppressed, m.decisions, m.riskScore,
		m.policyReloads, m.sweepFailures, m.directiveRetries,
	)
	return m
}

// PromptDelivered counts a delivered directive and observes its risk.
func (m *Metrics) PromptDelivered(reason string, risk int) {
	if m == nil {
		return
	}
	m.prompts.WithLabelValues(reason).Inc()
	m.riskScore.Observe(float64(risk))
}

// Suppressed counts a trigger refused by the consent store.
func (m *Metrics) Suppressed(cause string) {
	if m == nil {
		return
	}
	m.suppressed.WithLabelValues(cause).Inc()
}

// Decision counts a router decision.
func (m *Metrics) Decision(action string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action).Inc()
}

// PolicyReloaded counts an applied policy change.
func (m *Metrics) PolicyReloaded() {
	if m == nil {
		return
	}
	m.policyReloads.Inc()
}

// SweepFailure counts a tab that errored during re-evaluation.
func (m *Metrics) SweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

// DirectiveRetried counts a delivery that needed its retry.
func (m *Metrics) DirectiveRetried() {
	if m == nil {
		return
	}
	m.directiveRetries.Inc()
}
