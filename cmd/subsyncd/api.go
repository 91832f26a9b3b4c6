package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/subsync/handler"
	"github.com/dmitrymomot/subsync/pkg/binder"
	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/requestid"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type emailQuery struct {
	Email string `query:"email"`
}

type cancelRequest struct {
	UserEmail string `json:"user_email"`
}

type activeResponse struct {
	Subscription *subscription.Subscription `json:"subscription"`
	DaysLeft     int                        `json:"days_left"`
}

type statusResponse struct {
	Active bool `json:"active"`
}

// api exposes the engine queries and commands as JSON endpoints.
type api struct {
	engine *subscription.Engine
	log    *slog.Logger
	onBind handler.ErrorHandler[handler.Context]
}

func newAPI(engine *subscription.Engine, log *slog.Logger) *api {
	log = log.With(logger.Component("api"))
	return &api{engine: engine, log: log, onBind: handler.NewErrorHandler(log)}
}

func (a *api) completeCheckout(ctx handler.Context, req subscription.CheckoutRequest) handler.Response {
	sub, err := a.engine.CompleteCheckout(ctx, req)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(sub, handler.WithJSONStatus(http.StatusCreated))
}

func (a *api) currentSubscription(ctx handler.Context, req emailQuery) handler.Response {
	sub, err := a.engine.CurrentSubscription(ctx, req.Email)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(activeResponse{
		Subscription: sub,
		DaysLeft:     sub.DaysRemainingAt(time.Now()),
	})
}

func (a *api) status(ctx handler.Context, req emailQuery) handler.Response {
	active, err := a.engine.HasActiveSubscription(ctx, req.Email)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(statusResponse{Active: active})
}

func (a *api) history(ctx handler.Context, req emailQuery) handler.Response {
	subs, err := a.engine.History(ctx, req.Email)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(subs, handler.WithJSONMeta(map[string]any{"total": len(subs)}))
}

func (a *api) plans(ctx handler.Context, _ struct{}) handler.Response {
	plans, err := a.engine.Plans(ctx)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(plans)
}

func (a *api) cancel(ctx handler.Context, req cancelRequest) handler.Response {
	sub, err := a.engine.CancelSubscription(ctx, req.UserEmail)
	if err != nil {
		return a.fail(ctx, err)
	}
	return handler.JSON(sub)
}

// fail logs err and renders it with the status its domain error maps to.
func (a *api) fail(ctx handler.Context, err error) handler.Response {
	mapped := apiError(err)
	status := handler.StatusCode(mapped)

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	r := ctx.Request()
	a.log.LogAttrs(ctx, level, "request failed",
		logger.RequestID(requestid.FromContext(ctx)),
		logger.Error(err),
		slog.Int("status_code", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	return handler.JSONError(mapped)
}

func apiError(err error) error {
	switch {
	case errors.Is(err, subscription.ErrAlreadyActive):
		return fmt.Errorf("%w: %w", handler.ErrConflict, err)
	case errors.Is(err, subscription.ErrUserNotFound),
		errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, subscription.ErrNoActiveSubscription),
		errors.Is(err, subscription.ErrNotFound):
		return fmt.Errorf("%w: %w", handler.ErrNotFound, err)
	case errors.Is(err, subscription.ErrMissingEmail),
		errors.Is(err, subscription.ErrMissingExternalID),
		errors.Is(err, subscription.ErrUnknownStatus):
		return fmt.Errorf("%w: %w", handler.ErrUnprocessableEntity, err)
	case errors.Is(err, subscription.ErrProviderRejected):
		return fmt.Errorf("%w: %w", handler.ErrBadGateway, err)
	case subscription.IsRetryable(err), errors.Is(err, subscription.ErrLockNotAcquired):
		return fmt.Errorf("%w: %w", handler.ErrServiceUnavailable, err)
	default:
		return err
	}
}

// jsonEndpoint wraps h with JSON body binding.
func jsonEndpoint[R any](a *api, h handler.HandlerFunc[handler.Context, R]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binder.JSON()),
		handler.WithErrorHandler[handler.Context, R](a.onBind),
	)
}

// queryEndpoint wraps h with URL query binding.
func queryEndpoint[R any](a *api, h handler.HandlerFunc[handler.Context, R]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binder.Query()),
		handler.WithErrorHandler[handler.Context, R](a.onBind),
	)
}
