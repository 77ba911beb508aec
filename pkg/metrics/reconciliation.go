package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconciliationMetrics counts how payment outcomes were applied per channel.
type ReconciliationMetrics struct {
	outcomes             *prometheus.CounterVec
	notificationFailures prometheus.Counter
	webhookFailures      *prometheus.CounterVec
}

func NewReconciliationMetrics(reg prometheus.Registerer) *ReconciliationMetrics {
	if reg == nil {
		return nil
	}
	m := &ReconciliationMetrics{
		outcomes: counterVec("", "reconciliation_outcomes_total",
			"Payment outcomes seen by the reconciliation engine.", "channel", "outcome", "result"),
		notificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_dispatch_failures_total",
			Help:      "Order confirmations that could not be queued after payment.",
		}),
		webhookFailures: counterVec("", "webhook_processing_failures_total",
			"Verified webhooks whose processing failed.", "processor"),
	}
	reg.MustRegister(m.outcomes, m.notificationFailures, m.webhookFailures)
	return m
}

// ObserveOutcome records one application attempt. result is e.g. applied, noop, conflict, error.
func (m *ReconciliationMetrics) ObserveOutcome(channel, outcome, result string) {
	if m != nil {
		m.outcomes.WithLabelValues(label(channel), label(outcome), label(result)).Inc()
	}
}

func (m *ReconciliationMetrics) IncNotificationFailure() {
	if m != nil {
		m.notificationFailures.Inc()
	}
}

func (m *ReconciliationMetrics) IncWebhookFailure(processor string) {
	if m != nil {
		m.webhookFailures.WithLabelValues(label(processor)).Inc()
	}
}
