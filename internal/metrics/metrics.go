package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachdesk",
			Name:      "status_transitions_total",
			Help:      "Booking status edits by field.",
		},
		[]string{"field"},
	)

	paymentSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachdesk",
			Name:      "payment_sync_total",
			Help:      "Payment reconciliation outcomes per booking.",
		},
		[]string{"result"},
	)

	payoutRunOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coachdesk",
			Name:      "payout_run_ops_total",
			Help:      "Payout run operations.",
		},
		[]string{"op"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, statusTransitions, paymentSync, payoutRunOps)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncStatusTransition counts one applied status edit for a field.
func IncStatusTransition(field string) {
	statusTransitions.WithLabelValues(field).Inc()
}

// IncPaymentSync counts one reconciliation outcome: updated, skipped or failed.
func IncPaymentSync(result string) {
	paymentSync.WithLabelValues(result).Inc()
}

// IncPayoutRunOp counts one payout run operation: generate, backfill, lock or delete.
func IncPayoutRunOp(op string) {
	payoutRunOps.WithLabelValues(op).Inc()
}
