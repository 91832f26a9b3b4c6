package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/metrics"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { metrics.NewCollector(nil) })

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)
	assert.Panics(t, func() { metrics.NewCollector(reg) }, "duplicate registration must panic")
}

func TestCollector_Counters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.EventApplied(subscription.PathCreate, subscription.StatusActive)
	c.EventApplied(subscription.PathCreate, subscription.StatusActive)
	c.EventApplied(subscription.PathUpdate, subscription.StatusCanceled)
	c.EventFailed(subscription.PathCreate, true)
	c.SubscriptionsSuperseded(2)
	c.SubscriptionsSuperseded(0)
	c.WebhookResponded("stripe", http.StatusOK)

	count, err := testutil.GatherAndCount(reg, "subsync_events_applied_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per path/status pair")

	count, err = testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			values[mf.GetName()] += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, values["subsync_events_applied_total"])
	assert.Equal(t, 1.0, values["subsync_events_failed_total"])
	assert.Equal(t, 2.0, values["subsync_subscriptions_superseded_total"])
	assert.Equal(t, 1.0, values["subsync_webhook_responses_total"])
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.EventApplied(subscription.PathCheckout, subscription.StatusActive)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `subsync_events_applied_total{path="checkout",status="ACTIVE"} 1`)
}
