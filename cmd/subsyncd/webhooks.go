package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/subsync/pkg/logger"
	"github.com/dmitrymomot/subsync/pkg/metrics"
	"github.com/dmitrymomot/subsync/pkg/subscription"
)

const maxWebhookBodySize = 1 << 20

// webhookHandler verifies and applies one provider delivery. Only retryable
// failures answer 5xx, so the provider stops redelivering events that can
// never succeed.
func webhookHandler(provider string, d *subscription.Dispatcher, m *metrics.Collector, log *slog.Logger) http.HandlerFunc {
	header := signatureHeader(provider)
	log = log.With(logger.Component("webhooks"), logger.Provider(provider))

	return func(w http.ResponseWriter, r *http.Request) {
		code := processWebhook(r, w, header, d, log)
		m.WebhookResponded(provider, code)
		w.WriteHeader(code)
	}
}

func processWebhook(r *http.Request, w http.ResponseWriter, header string, d *subscription.Dispatcher, log *slog.Logger) int {
	ctx := r.Context()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WarnContext(ctx, "webhook payload too large", slog.Int64("limit", tooLarge.Limit))
			return http.StatusRequestEntityTooLarge
		}
		log.WarnContext(ctx, "failed to read webhook payload", logger.Error(err))
		return http.StatusBadRequest
	}

	err = d.HandleWebhook(ctx, payload, r.Header.Get(header))
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, subscription.ErrWebhookVerification):
		log.WarnContext(ctx, "webhook rejected", logger.Error(err))
		return http.StatusBadRequest
	case subscription.IsRetryable(err):
		log.WarnContext(ctx, "webhook failed, awaiting redelivery", logger.Error(err), logger.Retryable(true))
		return http.StatusInternalServerError
	default:
		log.ErrorContext(ctx, "webhook dropped", logger.Error(err), logger.Retryable(false))
		return http.StatusOK
	}
}
