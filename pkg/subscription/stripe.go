package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements Provider and WebhookParser for Stripe.
type StripeProvider struct {
	client *stripe.Client
	config StripeConfig
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	return &StripeProvider{
		client: stripe.NewClient(config.SecretKey, nil),
		config: config,
	}, nil
}

// FetchSubscription retrieves a subscription with its items expanded.
func (p *StripeProvider) FetchSubscription(ctx context.Context, externalID string) (*ProviderSubscription, error) {
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")

	sub, err := p.client.V1Subscriptions.Retrieve(ctx, externalID, params)
	if err != nil {
		return nil, classifyStripeError(err, "retrieve subscription "+externalID)
	}

	return stripeSnapshot(sub)
}

// FetchCustomerEmail retrieves the email stored on a Stripe customer.
func (p *StripeProvider) FetchCustomerEmail(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: empty customer id", ErrNotFound)
	}

	cus, err := p.client.V1Customers.Retrieve(ctx, customerID, nil)
	if err != nil {
		return "", classifyStripeError(err, "retrieve customer "+customerID)
	}
	if cus.Deleted {
		return "", fmt.Errorf("%w: customer %s was deleted", ErrNotFound, customerID)
	}
	if cus.Email == "" {
		return "", fmt.Errorf("%w: customer %s", ErrMissingCustomerEmail, customerID)
	}
	return cus.Email, nil
}

// CancelSubscription cancels a Stripe subscription immediately.
func (p *StripeProvider) CancelSubscription(ctx context.Context, externalID string) error {
	if externalID == "" {
		return ErrMissingExternalID
	}
	if _, err := p.client.V1Subscriptions.Cancel(ctx, externalID, nil); err != nil {
		return classifyStripeError(err, "cancel subscription "+externalID)
	}
	return nil
}

// ParseWebhook verifies the Stripe-Signature header and converts the event.
// API version mismatches are tolerated since only a handful of stable fields are read.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Envelope, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrWebhookVerification, err)
	}
	return stripeEnvelope(event)
}

// stripeEnvelope maps a verified Stripe event onto an Envelope.
func stripeEnvelope(event stripe.Event) (*Envelope, error) {
	env := &Envelope{
		ID:       event.ID,
		Provider: string(event.Type),
		Type:     mapStripeEventType(string(event.Type)),
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, event.ID)
	}

	switch env.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("decode checkout session: %w", err))
		}
		req, err := stripeCheckoutRequest(&session)
		if err != nil {
			return nil, err
		}
		env.Checkout = req

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("decode subscription: %w", err))
		}
		snap, err := stripeSnapshot(&sub)
		if err != nil {
			return nil, err
		}
		env.Event = Event{
			ExternalSubscriptionID: snap.ID,
			Status:                 snap.Status,
			PriceID:                snap.PriceID,
			PeriodStart:            snap.PeriodStart,
			PeriodEnd:              snap.PeriodEnd,
		}
		if sub.Customer != nil {
			env.Event.CustomerEmail = sub.Customer.Email
		}
		// customer.subscription.deleted carries the final status, but be explicit.
		if env.Type == EventSubscriptionCancelled {
			env.Event.Status = StatusCanceled
		}
	}

	return env, nil
}

// stripeCheckoutRequest extracts the checkout completion call from a session.
// Returns nil for sessions that are not subscription purchases.
func stripeCheckoutRequest(session *stripe.CheckoutSession) (*CheckoutRequest, error) {
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil, nil
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return nil, fmt.Errorf("%w: checkout session %s has no subscription", ErrMalformedEvent, session.ID)
	}

	rawPlanID, ok := session.Metadata["plan_id"]
	if !ok {
		return nil, fmt.Errorf("%w: checkout session %s has no plan_id metadata", ErrMalformedEvent, session.ID)
	}
	planID, err := strconv.ParseInt(rawPlanID, 10, 64)
	if err != nil {
		return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("invalid plan_id %q: %w", rawPlanID, err))
	}

	email := session.CustomerEmail
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}

	return &CheckoutRequest{
		UserEmail:              email,
		PlanID:                 planID,
		ExternalSubscriptionID: session.Subscription.ID,
	}, nil
}

// stripeSnapshot normalizes a Stripe subscription. Since API version 2025-03-31
// billing periods live on subscription items, so the first item is authoritative.
func stripeSnapshot(sub *stripe.Subscription) (*ProviderSubscription, error) {
	status, err := ParseStatus(string(sub.Status))
	if err != nil {
		return nil, err
	}

	snap := &ProviderSubscription{
		ID:     sub.ID,
		Status: status,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			snap.PriceID = item.Price.ID
		}
		snap.PeriodStart = unixTime(item.CurrentPeriodStart)
		snap.PeriodEnd = unixTime(item.CurrentPeriodEnd)
	}

	return snap, nil
}

// classifyStripeError splits Stripe failures into not-found and transient.
func classifyStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return errors.Join(ErrNotFound, fmt.Errorf("stripe: %s: %w", op, err))
		}
		// Other 4xx responses are configuration problems, not outages.
		if stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 &&
			stripeErr.HTTPStatusCode != http.StatusTooManyRequests {
			return errors.Join(ErrProviderRejected, fmt.Errorf("stripe: %s: %w", op, err))
		}
	}
	return errors.Join(ErrProviderUnavailable, fmt.Errorf("stripe: %s: %w", op, err))
}

// mapStripeEventType maps Stripe event types to internal EventType.
func mapStripeEventType(stripeEvent string) EventType {
	switch stripeEvent {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionCancelled
	case "invoice.payment_succeeded":
		return EventPaymentSucceeded
	case "invoice.payment_failed":
		return EventPaymentFailed
	default:
		return EventType(stripeEvent)
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
