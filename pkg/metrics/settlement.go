package metrics

import "github.com/prometheus/client_golang/prometheus"

// SettlementMetrics counts order lifecycle outcomes.
type SettlementMetrics struct {
	settled   *prometheus.CounterVec
	canceled  *prometheus.CounterVec
	conflicts prometheus.Counter
}

// NewSettlementMetrics registers lifecycle counters on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_settled_total",
		Help: "Orders settled, by provider.",
	}, []string{"provider"})
	canceled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_canceled_total",
		Help: "Orders canceled, by provider.",
	}, []string{"provider"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_conflicts_total",
		Help: "Duplicate callbacks and double-cancel attempts rejected.",
	})
	reg.MustRegister(settled, canceled, conflicts)
	return &SettlementMetrics{
		settled:   settled,
		canceled:  canceled,
		conflicts: conflicts,
	}
}

// IncSettled increments the settled counter for the named provider.
func (s *SettlementMetrics) IncSettled(provider string) {
	if s == nil || s.settled == nil {
		return
	}
	s.settled.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncCanceled increments the canceled counter for the named provider.
func (s *SettlementMetrics) IncCanceled(provider string) {
	if s == nil || s.canceled == nil {
		return
	}
	s.canceled.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncConflict increments the rejected-duplicate counter.
func (s *SettlementMetrics) IncConflict() {
	if s == nil || s.conflicts == nil {
		return
	}
	s.conflicts.Inc()
}
