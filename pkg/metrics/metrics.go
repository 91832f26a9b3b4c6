package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

// Collector records reconciliation outcomes as Prometheus counters.
type Collector struct {
	applied    *prometheus.CounterVec
	failed     *prometheus.CounterVec
	superseded prometheus.Counter
	webhooks   *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
// Panics if reg is nil or a metric with the same name is already registered.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		panic("metrics: registerer is required")
	}

	c := &Collector{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "events_applied_total",
			Help:      "Events written to the subscription store, by path and resulting status.",
		}, []string{"path", "status"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "events_failed_total",
			Help:      "Events that could not be applied, by path and retryability.",
		}, []string{"path", "retryable"}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "subscriptions_superseded_total",
			Help:      "ACTIVE subscriptions canceled because a newer one became ACTIVE for the same user.",
		}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subsync",
			Name:      "webhook_responses_total",
			Help:      "Webhook deliveries by provider and HTTP status code returned.",
		}, []string{"provider", "status_code"}),
	}

	reg.MustRegister(c.applied, c.failed, c.superseded, c.webhooks)
	return c
}

// EventApplied counts a successful write.
func (c *Collector) EventApplied(path string, status subscription.Status) {
	c.applied.WithLabelValues(path, string(status)).Inc()
}

// EventFailed counts an event that returned an error.
func (c *Collector) EventFailed(path string, retryable bool) {
	c.failed.WithLabelValues(path, strconv.FormatBool(retryable)).Inc()
}

// SubscriptionsSuperseded counts guard cancellations.
func (c *Collector) SubscriptionsSuperseded(n int) {
	if n > 0 {
		c.superseded.Add(float64(n))
	}
}

// WebhookResponded counts the status code returned to a provider.
func (c *Collector) WebhookResponded(provider string, statusCode int) {
	c.webhooks.WithLabelValues(provider, strconv.Itoa(statusCode)).Inc()
}

var _ subscription.MetricsRecorder = (*Collector)(nil)

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
