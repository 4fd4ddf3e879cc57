package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionTransitionsTotal,
		guardRepairsTotal,
		callbackFailuresTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscription_transitions_total",
			Help: "Subscription lifecycle transitions by event.",
		},
		[]string{"event"}, // subscribe_requested, first_install, plan_change, activation, cancelled
	)

	guardRepairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_guard_repairs_total",
			Help: "Stale local subscription markers cleared by the reconciliation guard.",
		},
		[]string{"kind"}, // activation_unsubmitted, activation_unapproved, pending_unapproved
	)

	callbackFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_callback_failures_total",
			Help: "Inbound billing callbacks and webhooks that were acknowledged but failed internally.",
		},
		[]string{"callback"},
	)
)

func IncSubscriptionTransition(event string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(event)).Inc()
}

func IncGuardRepair(kind string) {
	guardRepairsTotal.WithLabelValues(norm(kind)).Inc()
}

func IncCallbackFailure(callback string) {
	callbackFailuresTotal.WithLabelValues(norm(callback)).Inc()
}
