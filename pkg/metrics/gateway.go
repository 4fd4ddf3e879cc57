package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallsTotal, gatewayCallDuration) }

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_gateway_calls_total",
			Help: "Calls made to the external billing gateway by operation and outcome.",
		},
		[]string{"op", "outcome"}, // outcome: ok, unreachable, rejected
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_gateway_call_duration_seconds",
			Help:    "Latency of billing gateway calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// ObserveGatewayCall records a finished gateway call.
func ObserveGatewayCall(op, outcome string, took time.Duration) {
	gatewayCallsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
	gatewayCallDuration.WithLabelValues(norm(op)).Observe(took.Seconds())
}
