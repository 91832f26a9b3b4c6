package subscription

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Dispatcher verifies webhook deliveries and routes them to the engine.
type Dispatcher struct {
	parser WebhookParser
	engine *Engine
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher for one provider.
// Panics if parser or engine is nil to fail fast during initialization.
func NewDispatcher(parser WebhookParser, engine *Engine, log *slog.Logger) *Dispatcher {
	if parser == nil {
		panic("subscription: webhook parser is required")
	}
	if engine == nil {
		panic("subscription: engine is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{parser: parser, engine: engine, logger: log}
}

// HandleWebhook verifies the payload and applies the event it carries.
// Returns ErrWebhookVerification for bad signatures; use IsRetryable to decide
// whether the provider should redeliver after any other error.
func (d *Dispatcher) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	env, err := d.parser.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, env)
}

// Dispatch applies a verified envelope. Payment events and unknown types are acknowledged
// without touching state.
func (d *Dispatcher) Dispatch(ctx context.Context, env *Envelope) error {
	log := d.logger.With(logger.EventType(string(env.Type)), logger.MessageID(env.ID))

	switch env.Type {
	case EventCheckoutCompleted:
		if env.Checkout == nil {
			log.DebugContext(ctx, "checkout without subscription ignored")
			return nil
		}
		_, err := d.engine.CompleteCheckout(ctx, *env.Checkout)
		if errors.Is(err, ErrAlreadyActive) {
			// Redeliveries and webhook-first races land here once the record exists.
			log.InfoContext(ctx, "checkout already reconciled",
				logger.ExternalSubscriptionID(env.Checkout.ExternalSubscriptionID),
			)
			return nil
		}
		return err

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled:
		_, err := d.engine.Apply(ctx, env.Event)
		return err

	case EventPaymentSucceeded, EventPaymentFailed:
		log.DebugContext(ctx, "payment event acknowledged")
		return nil

	default:
		log.DebugContext(ctx, "unhandled webhook event", slog.String("provider_event", env.Provider))
		return nil
	}
}
