package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters for the payment failure/retry flow. Registered on the
// default registry so they are served by the same /metrics listener as the
// HTTP middleware metrics.

var WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_webhook_events_total",
	Help: "Stripe webhook deliveries, partitioned by event type and handling status.",
}, []string{"event_type", "status"})

var RetryOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_retry_outcomes_total",
	Help: "Payment retry attempts, partitioned by terminal outcome and error type.",
}, []string{"outcome", "error_type"})
