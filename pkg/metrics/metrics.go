// Package metrics holds the Prometheus collectors each binary registers. A nil
// registerer yields inert collectors, and every method is safe on a nil receiver.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "storefront"

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}
