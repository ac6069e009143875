// Package metrics exposes Prometheus counters for workflow outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultInvalid  = "invalid"
)

// Side-effect kind label values.
const (
	KindShare           = "share"
	KindAccessCondition = "access_condition"
)

// Metrics counts workflow outcomes. A nil *Metrics is valid and counts
// nothing, so wiring it up is optional.
type Metrics struct {
	purchases   *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	sideEffects *prometheus.CounterVec
}

// New creates Metrics registered with the default Prometheus registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates Metrics registered with the given registerer.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		purchases: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thesishub",
				Name:      "purchases_total",
				Help:      "Completed and failed purchase attempts.",
			},
			[]string{"result"},
		),
		publishes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thesishub",
				Name:      "publishes_total",
				Help:      "Completed and failed publish attempts.",
			},
			[]string{"result"},
		),
		sideEffects: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "thesishub",
				Name:      "sideeffect_failures_total",
				Help:      "Best-effort follow-up steps that failed after a confirmed transaction.",
			},
			[]string{"kind"},
		),
	}
}

// Purchase counts one purchase attempt with the given result.
func (m *Metrics) Purchase(result string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(result).Inc()
}

// Publish counts one publish attempt with the given result.
func (m *Metrics) Publish(result string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(result).Inc()
}

// SideEffectFailure counts one swallowed best-effort failure of the given
// kind.
func (m *Metrics) SideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind).Inc()
}
