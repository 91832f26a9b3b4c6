package subscription

import (
	"context"
	"time"
)

// Provider is the minimal read contract the engine needs from a payment provider.
// Implementations are stateless with respect to the engine: a configured client is passed
// in explicitly, so tests can substitute a fake without touching global state.
//
// Every method returns an error matching ErrProviderUnavailable on transport failures
// and throttling, ErrNotFound when the provider does not know the requested object, and
// ErrProviderRejected for any other client error (bad credentials, forbidden, invalid request).
type Provider interface {
	// FetchSubscription returns the provider's current view of a subscription.
	FetchSubscription(ctx context.Context, externalID string) (*ProviderSubscription, error)

	// FetchCustomerEmail returns the email address the provider has on file for a customer.
	FetchCustomerEmail(ctx context.Context, customerID string) (string, error)

	// CancelSubscription asks the provider to cancel the subscription immediately.
	// The local record is updated by the webhook or by the caller through the engine.
	CancelSubscription(ctx context.Context, externalID string) error
}

// ProviderSubscription is a provider-agnostic snapshot of a subscription.
type ProviderSubscription struct {
	ID          string
	Status      Status
	CustomerID  string
	PriceID     string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// Envelope is a verified, typed webhook delivery ready for dispatch.
type Envelope struct {
	ID       string    // provider's event id
	Type     EventType // normalized event type
	Provider string    // original provider event name
	Event    Event     // populated for subscription events
	Checkout *CheckoutRequest
}

// EventType represents the normalized billing event type.
// Each provider implementation maps its specific events to these types.
type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout_completed"
	EventSubscriptionCreated   EventType = "subscription_created"
	EventSubscriptionUpdated   EventType = "subscription_updated"
	EventSubscriptionCancelled EventType = "subscription_cancelled"

	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
)

// WebhookParser verifies a raw delivery and turns it into an Envelope.
// It returns ErrWebhookVerification for bad signatures.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Envelope, error)
}
