// Package observability wires tracing and domain metrics.
//
// This file exposes the Prometheus counters for delivery processing. Labels
// stay low-cardinality: terminal status for deliveries, rule name and result
// for actions. HTTP-level metrics live in the middleware package.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// deliveries counts webhook deliveries by terminal pipeline status.
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Total webhook deliveries by terminal status.",
		},
		[]string{"status"},
	)

	// ruleActions counts recorded side effects by rule and result.
	ruleActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_actions_total",
			Help: "Total rule actions by rule name and result.",
		},
		[]string{"rule", "result"},
	)
)

func init() {
	prometheus.MustRegister(deliveries, ruleActions)
}

// ObserveDelivery tallies one terminal delivery outcome.
func ObserveDelivery(status string) {
	deliveries.WithLabelValues(status).Inc()
}

// ObserveRuleAction tallies one executed, skipped, or failed action.
func ObserveRuleAction(rule, result string) {
	ruleActions.WithLabelValues(rule, result).Inc()
}
