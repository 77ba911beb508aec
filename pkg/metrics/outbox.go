package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics tracks the outbox relay by event type.
type OutboxMetrics struct {
	published   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return nil
	}
	m := &OutboxMetrics{
		published:   counterVec("outbox", "published_total", "Outbox events published to Pub/Sub.", "event_type"),
		failed:      counterVec("outbox", "publish_failures_total", "Publish attempts that will be retried.", "event_type"),
		deadLetters: counterVec("outbox", "dead_letters_total", "Events moved to the dead-letter table.", "event_type", "reason"),
	}
	reg.MustRegister(m.published, m.failed, m.deadLetters)
	return m
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m != nil {
		m.published.WithLabelValues(label(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m != nil {
		m.failed.WithLabelValues(label(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncDeadLetter(eventType, reason string) {
	if m != nil {
		m.deadLetters.WithLabelValues(label(eventType), label(reason)).Inc()
	}
}
