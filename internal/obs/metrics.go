package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records data-layer operations. A nil *Metrics records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callsdb_operations_total",
				Help: "Repository operations by entity, operation and outcome.",
			},
			[]string{"entity", "op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callsdb_operation_duration_seconds",
				Help:    "Repository operation latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "op"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callsdb_transactions_total",
				Help: "Transactions by outcome.",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.transactions)
	return m
}

// ObserveOperation records one finished repository operation.
func (m *Metrics) ObserveOperation(entity, op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, op, outcome).Inc()
	m.duration.WithLabelValues(entity, op).Observe(elapsed.Seconds())
}

// ObserveTransaction records a committed or aborted transaction.
func (m *Metrics) ObserveTransaction(outcome string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
}
