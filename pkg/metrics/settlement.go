package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records outcomes for the money-moving operations:
// statement publishes, statement payment runs, and gateway settlements.
type SettlementMetrics struct {
	publishes   *prometheus.CounterVec
	payments    *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided
// registerer. A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_publishes_total",
		Help: "Statement publish attempts by outcome.",
	}, []string{"outcome"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "statement_payments_total",
		Help: "Statement payment runs by outcome.",
	}, []string{"outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_settlements_total",
		Help: "Gateway transfer settlements by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(publishes, payments, settlements)
	return &SettlementMetrics{
		publishes:   publishes,
		payments:    payments,
		settlements: settlements,
	}
}

// IncPublish increments the publish counter for the given outcome.
func (m *SettlementMetrics) IncPublish(outcome string) {
	if m == nil || m.publishes == nil {
		return
	}
	m.publishes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncPayment increments the payment-run counter for the given outcome.
func (m *SettlementMetrics) IncPayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncSettlement increments the gateway settlement counter for the given
// transfer kind ("withdrawal" or "session_payout") and outcome.
func (m *SettlementMetrics) IncSettlement(kind, outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
