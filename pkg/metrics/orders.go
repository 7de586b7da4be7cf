package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts applied order transitions and ledger effects.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	ledgerCents *prometheus.CounterVec
}

// NewOrderMetrics registers the order lifecycle metrics. A nil registerer yields a
// no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions applied, by source state, event and target state.",
	}, []string{"from", "event", "to"})
	ledgerCents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_delta_cents_total",
		Help:      "Absolute minor units moved through supplier balances, by ledger entry type.",
	}, []string{"type"})
	reg.MustRegister(transitions, ledgerCents)
	return &OrderMetrics{transitions: transitions, ledgerCents: ledgerCents}
}

func (m *OrderMetrics) ObserveTransition(from, event, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(event), normalizeLabel(to)).Inc()
}

func (m *OrderMetrics) AddLedgerCents(entryType string, cents int64) {
	if m == nil || m.ledgerCents == nil {
		return
	}
	if cents < 0 {
		cents = -cents
	}
	m.ledgerCents.WithLabelValues(normalizeLabel(entryType)).Add(float64(cents))
}
