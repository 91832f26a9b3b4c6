package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/metrics"
	"github.com/dmitrymomot/subsync/pkg/requestid"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

const validSignature = "t=1,v1=valid"

var (
	proPlan = subscription.Plan{
		ID: 1, Name: "Pro", PriceID: "price_pro", DurationMonths: 1,
		Price: subscription.Money{Amount: 1999, Currency: "USD"}, Active: true,
	}
	basicPlan = subscription.Plan{
		ID: 2, Name: "Basic", PriceID: "price_basic", DurationMonths: 12,
		Price: subscription.Money{Amount: 9900, Currency: "USD"}, Active: true,
	}
)

// fakeProvider serves snapshots from a fixed map.
type fakeProvider struct {
	subs      map[string]*subscription.ProviderSubscription
	fetchErr  error
	cancelErr error
}

func (p *fakeProvider) FetchSubscription(_ context.Context, externalID string) (*subscription.ProviderSubscription, error) {
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	snap, ok := p.subs[externalID]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return snap, nil
}

func (p *fakeProvider) FetchCustomerEmail(context.Context, string) (string, error) {
	return "", subscription.ErrNotFound
}

func (p *fakeProvider) CancelSubscription(context.Context, string) error {
	return p.cancelErr
}

// fakeParser accepts deliveries signed with validSignature whose body is a
// JSON-encoded subscription.Event.
type fakeParser struct{}

func (fakeParser) ParseWebhook(_ context.Context, payload []byte, signature string) (*subscription.Envelope, error) {
	if signature != validSignature {
		return nil, subscription.ErrWebhookVerification
	}
	var event subscription.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Join(subscription.ErrMalformedEvent, err)
	}
	return &subscription.Envelope{
		ID:    "evt_" + event.ExternalSubscriptionID,
		Type:  subscription.EventSubscriptionUpdated,
		Event: event,
	}, nil
}

type testApp struct {
	handler  http.Handler
	provider *fakeProvider
	registry *prometheus.Registry
	user     subscription.User
}

func newTestApp(t *testing.T, checks ...httpserver.Check) *testApp {
	t.Helper()

	a := &testApp{
		provider: &fakeProvider{subs: map[string]*subscription.ProviderSubscription{}},
		registry: prometheus.NewRegistry(),
		user:     subscription.User{ID: uuid.New(), Email: "jane@example.com"},
	}
	log := slog.New(slog.DiscardHandler)
	collector := metrics.NewCollector(a.registry)

	engine := subscription.NewEngine(
		subscription.NewMemoryStore(),
		subscription.NewMemoryUsers(a.user),
		subscription.NewInMemCatalog(proPlan, basicPlan),
		a.provider,
		subscription.WithMetrics(collector),
	)

	a.handler = newRouter(routerDeps{
		engine: engine,
		dispatchers: map[string]*subscription.Dispatcher{
			providerStripe: subscription.NewDispatcher(fakeParser{}, engine, log),
		},
		metrics:          collector,
		gatherer:         a.registry,
		checks:           checks,
		readinessTimeout: time.Second,
		log:              log,
	})
	return a
}

func (a *testApp) do(t *testing.T, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) webhook(t *testing.T, event subscription.Event, signature string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return a.do(t, http.MethodPost, "/webhooks/stripe", string(payload), map[string]string{
		"Stripe-Signature": signature,
	})
}

func (a *testApp) postJSON(t *testing.T, target string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return a.do(t, http.MethodPost, target, buf.String(), map[string]string{
		"Content-Type": "application/json",
	})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestWebhookEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("rejects bad signature", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.webhook(t, subscription.Event{ExternalSubscriptionID: "sub_1"}, "forged")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("applies event", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.webhook(t, subscription.Event{
			ExternalSubscriptionID: "sub_1",
			Status:                 subscription.StatusActive,
			CustomerEmail:          app.user.Email,
			PriceID:                proPlan.PriceID,
		}, validSignature)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = app.do(t, http.MethodGet, "/subscriptions/current?email="+app.user.Email, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var current activeResponse
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &current))
		assert.Equal(t, "sub_1", current.Subscription.ExternalSubscriptionID)
		assert.Equal(t, subscription.StatusActive, current.Subscription.Status)
	})

	t.Run("unknown user asks for redelivery", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.webhook(t, subscription.Event{
			ExternalSubscriptionID: "sub_1",
			Status:                 subscription.StatusActive,
			CustomerEmail:          "ghost@example.com",
			PriceID:                proPlan.PriceID,
		}, validSignature)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("unknown plan is redelivered", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.webhook(t, subscription.Event{
			ExternalSubscriptionID: "sub_1",
			Status:                 subscription.StatusActive,
			CustomerEmail:          app.user.Email,
			PriceID:                "price_unknown",
		}, validSignature)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		rec = app.do(t, http.MethodGet, "/subscriptions/current?email="+app.user.Email, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unconfigured provider", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.do(t, http.MethodPost, "/webhooks/paddle", "{}", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("responses are counted", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		app.webhook(t, subscription.Event{ExternalSubscriptionID: "sub_1"}, "forged")

		count, err := testutil.GatherAndCount(app.registry, "subsync_webhook_responses_total")
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestCheckoutEndpoint(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	snapshot := func(id string) *subscription.ProviderSubscription {
		return &subscription.ProviderSubscription{
			ID: id, Status: subscription.StatusActive, PriceID: proPlan.PriceID,
			PeriodStart: &start, PeriodEnd: &end,
		}
	}

	t.Run("creates subscription", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		app.provider.subs["sub_1"] = snapshot("sub_1")

		rec := app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: proPlan.ID, ExternalSubscriptionID: "sub_1",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get(requestid.Header))

		var sub subscription.Subscription
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &sub))
		assert.Equal(t, app.user.ID, sub.UserID)
		assert.Equal(t, proPlan.ID, sub.PlanID)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		require.NotNil(t, sub.CurrentPeriodEnd)
		assert.True(t, end.Equal(*sub.CurrentPeriodEnd))
	})

	t.Run("conflicts with active subscription", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		app.provider.subs["sub_1"] = snapshot("sub_1")
		app.provider.subs["sub_2"] = snapshot("sub_2")

		rec := app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: proPlan.ID, ExternalSubscriptionID: "sub_1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: basicPlan.ID, ExternalSubscriptionID: "sub_2",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		env := decode(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, "conflict", env.Error.Code)
		assert.Contains(t, env.Error.Message, subscription.ErrAlreadyActive.Error())
	})

	t.Run("unknown user and plan", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: "ghost@example.com", PlanID: proPlan.ID, ExternalSubscriptionID: "sub_1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: 99, ExternalSubscriptionID: "sub_1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("provider outage", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		app.provider.fetchErr = subscription.ErrProviderUnavailable

		rec := app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: proPlan.ID, ExternalSubscriptionID: "sub_1",
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		env := decode(t, rec)
		require.NotNil(t, env.Error)
		assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), env.Error.Message)
	})

	t.Run("missing external id", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.postJSON(t, "/checkout/complete", subscription.CheckoutRequest{
			UserEmail: app.user.Email, PlanID: proPlan.ID,
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		rec := app.do(t, http.MethodPost, "/checkout/complete", `{"user_email":"a@b.c"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(t, http.MethodPost, "/checkout/complete", `{"unknown":1}`, map[string]string{
			"Content-Type": "application/json",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubscriptionEndpoints(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	for i, ev := range []subscription.Event{
		{ExternalSubscriptionID: "sub_old", Status: subscription.StatusCanceled, CustomerEmail: app.user.Email, PriceID: basicPlan.PriceID},
		{ExternalSubscriptionID: "sub_new", Status: subscription.StatusActive, CustomerEmail: app.user.Email, PriceID: proPlan.PriceID},
	} {
		rec := app.webhook(t, ev, validSignature)
		require.Equal(t, http.StatusOK, rec.Code, "event %d", i)
	}

	t.Run("history", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/subscriptions/history?email="+app.user.Email, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		env := decode(t, rec)
		var subs []subscription.Subscription
		require.NoError(t, json.Unmarshal(env.Data, &subs))
		assert.Len(t, subs, 2)
		assert.EqualValues(t, 2, env.Meta["total"])

		rec = app.do(t, http.MethodGet, "/subscriptions/history?email=ghost@example.com", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("plans", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/plans", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var plans []subscription.Plan
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &plans))
		assert.Equal(t, []subscription.Plan{proPlan, basicPlan}, plans)
	})

	t.Run("status", func(t *testing.T) {
		rec := app.do(t, http.MethodGet, "/subscriptions/status?email="+app.user.Email, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var status statusResponse
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &status))
		assert.True(t, status.Active)

		rec = app.do(t, http.MethodGet, "/subscriptions/status?email=ghost@example.com", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		app.provider.cancelErr = errors.Join(subscription.ErrProviderRejected, errors.New("invalid api key"))
		rec := app.postJSON(t, "/subscriptions/cancel", cancelRequest{UserEmail: app.user.Email})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		app.provider.cancelErr = subscription.ErrProviderUnavailable
		rec = app.postJSON(t, "/subscriptions/cancel", cancelRequest{UserEmail: app.user.Email})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		app.provider.cancelErr = nil
		rec = app.postJSON(t, "/subscriptions/cancel", cancelRequest{UserEmail: app.user.Email})
		require.Equal(t, http.StatusOK, rec.Code)

		var sub subscription.Subscription
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &sub))
		assert.Equal(t, "sub_new", sub.ExternalSubscriptionID)
		assert.Equal(t, subscription.StatusCanceled, sub.Status)

		rec = app.postJSON(t, "/subscriptions/cancel", cancelRequest{UserEmail: app.user.Email})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(t, http.MethodGet, "/subscriptions/current?email="+app.user.Email, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(t, http.MethodGet, "/subscriptions/status?email="+app.user.Email, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var status statusResponse
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &status))
		assert.False(t, status.Active)
	})
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, httpserver.Check{Name: "postgres", Probe: func(context.Context) error { return nil }})
		assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health/live", "", nil).Code)
		assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health/ready", "", nil).Code)
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, httpserver.Check{Name: "redis", Probe: func(context.Context) error {
			return errors.New("connection refused")
		}})
		rec := app.do(t, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "redis")
	})

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t)
		app.webhook(t, subscription.Event{ExternalSubscriptionID: "sub_1"}, "forged")

		rec := app.do(t, http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "subsync_webhook_responses_total")
	})
}
