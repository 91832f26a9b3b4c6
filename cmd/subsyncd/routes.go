package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/subsync/handler"
	"github.com/dmitrymomot/subsync/pkg/httpserver"
	"github.com/dmitrymomot/subsync/pkg/metrics"
	"github.com/dmitrymomot/subsync/pkg/requestid"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type routerDeps struct {
	engine           *subscription.Engine
	dispatchers      map[string]*subscription.Dispatcher
	metrics          *metrics.Collector
	gatherer         prometheus.Gatherer
	checks           []httpserver.Check
	readinessTimeout time.Duration
	log              *slog.Logger
}

func newRouter(deps routerDeps) http.Handler {
	a := newAPI(deps.engine, deps.log)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Route("/webhooks", func(r chi.Router) {
		for provider, d := range deps.dispatchers {
			r.Post("/"+provider, webhookHandler(provider, d, deps.metrics, deps.log))
		}
	})

	r.Post("/checkout/complete", jsonEndpoint[subscription.CheckoutRequest](a, a.completeCheckout))

	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/current", queryEndpoint[emailQuery](a, a.currentSubscription))
		r.Get("/status", queryEndpoint[emailQuery](a, a.status))
		r.Get("/history", queryEndpoint[emailQuery](a, a.history))
		r.Post("/cancel", jsonEndpoint[cancelRequest](a, a.cancel))
	})

	r.Get("/plans", handler.Wrap[handler.Context, struct{}](a.plans,
		handler.WithErrorHandler[handler.Context, struct{}](a.onBind),
	))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", httpserver.Liveness())
		r.Get("/ready", httpserver.Readiness(deps.log, deps.readinessTimeout, deps.checks...))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.gatherer))

	return r
}
