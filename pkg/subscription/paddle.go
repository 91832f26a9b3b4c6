package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider and WebhookParser for Paddle Billing.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, config.Environment)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// FetchSubscription retrieves a subscription from Paddle.
func (p *PaddleProvider) FetchSubscription(ctx context.Context, externalID string) (*ProviderSubscription, error) {
	if externalID == "" {
		return nil, ErrMissingExternalID
	}

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: externalID,
	})
	if err != nil {
		return nil, classifyPaddleError(err, "get subscription "+externalID)
	}

	status, err := ParseStatus(string(sub.Status))
	if err != nil {
		return nil, err
	}

	snap := &ProviderSubscription{
		ID:         sub.ID,
		Status:     status,
		CustomerID: sub.CustomerID,
	}
	if len(sub.Items) > 0 {
		snap.PriceID = sub.Items[0].Price.ID
	}
	if sub.CurrentBillingPeriod != nil {
		snap.PeriodStart = parsePaddleTime(sub.CurrentBillingPeriod.StartsAt)
		snap.PeriodEnd = parsePaddleTime(sub.CurrentBillingPeriod.EndsAt)
	}
	return snap, nil
}

// FetchCustomerEmail retrieves the email of a Paddle customer (ctm_xxx).
func (p *PaddleProvider) FetchCustomerEmail(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: empty customer id", ErrNotFound)
	}

	customer, err := p.client.CustomersClient.GetCustomer(ctx, &paddle.GetCustomerRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return "", classifyPaddleError(err, "get customer "+customerID)
	}
	if customer.Email == "" {
		return "", fmt.Errorf("%w: customer %s", ErrMissingCustomerEmail, customerID)
	}
	return customer.Email, nil
}

// CancelSubscription cancels a Paddle subscription immediately.
func (p *PaddleProvider) CancelSubscription(ctx context.Context, externalID string) error {
	if externalID == "" {
		return ErrMissingExternalID
	}

	_, err := p.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: externalID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return classifyPaddleError(err, "cancel subscription "+externalID)
	}
	return nil
}

// ParseWebhook validates and parses incoming webhook data from Paddle.
// The SDK verifier works on requests, so the payload is wrapped into one.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerification, err)
	}
	if !valid {
		return nil, ErrWebhookVerification
	}

	return paddleEnvelope(payload)
}

// paddleEnvelope parses a verified Paddle notification.
func paddleEnvelope(payload []byte) (*Envelope, error) {
	var paddleEvent struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt string         `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}

	if err := json.Unmarshal(payload, &paddleEvent); err != nil {
		return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("failed to parse webhook payload: %w", err))
	}

	env := &Envelope{
		ID:       paddleEvent.EventID,
		Type:     mapPaddleEventType(paddleEvent.EventType),
		Provider: paddleEvent.EventType,
	}
	data := paddleEvent.Data
	customData, _ := data["custom_data"].(map[string]any)

	switch env.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled:
		subID, _ := data["id"].(string)
		if subID == "" {
			return nil, fmt.Errorf("%w: %s without subscription id", ErrMalformedEvent, paddleEvent.EventType)
		}
		rawStatus, _ := data["status"].(string)
		status, err := ParseStatus(rawStatus)
		if err != nil {
			return nil, err
		}
		if env.Type == EventSubscriptionCancelled {
			status = StatusCanceled
		}

		env.Event = Event{ExternalSubscriptionID: subID, Status: status}

		// Extract plan/price ID from items
		if items, ok := data["items"].([]any); ok && len(items) > 0 {
			if item, ok := items[0].(map[string]any); ok {
				if price, ok := item["price"].(map[string]any); ok {
					env.Event.PriceID, _ = price["id"].(string)
				}
			}
		}
		if period, ok := data["current_billing_period"].(map[string]any); ok {
			startsAt, _ := period["starts_at"].(string)
			endsAt, _ := period["ends_at"].(string)
			env.Event.PeriodStart = parsePaddleTime(startsAt)
			env.Event.PeriodEnd = parsePaddleTime(endsAt)
		}
		if email, ok := customData["email"].(string); ok {
			env.Event.CustomerEmail = email
		}

	case EventCheckoutCompleted:
		subID, _ := data["subscription_id"].(string)
		if subID == "" {
			// One-off transactions are not subscription purchases.
			return env, nil
		}
		email, _ := customData["email"].(string)
		rawPlanID, _ := customData["plan_id"].(string)
		planID, err := strconv.ParseInt(rawPlanID, 10, 64)
		if err != nil {
			return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("invalid plan_id %q: %w", rawPlanID, err))
		}
		env.Checkout = &CheckoutRequest{
			UserEmail:              email,
			PlanID:                 planID,
			ExternalSubscriptionID: subID,
		}
	}

	return env, nil
}

// classifyPaddleError splits Paddle failures into not-found and transient.
func classifyPaddleError(err error, op string) error {
	var apiErr *paddleerr.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusNotFound {
			return errors.Join(ErrNotFound, fmt.Errorf("paddle: %s: %w", op, err))
		}
		if apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests {
			return errors.Join(ErrProviderRejected, fmt.Errorf("paddle: %s: %w", op, err))
		}
	}
	return errors.Join(ErrProviderUnavailable, fmt.Errorf("paddle: %s: %w", op, err))
}

// mapPaddleEventType maps Paddle event types to internal EventType.
func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "subscription.created", "subscription.activated":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.resumed", "subscription.paused", "subscription.past_due":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionCancelled
	case "transaction.paid":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		// Return the original event as EventType for unmapped events
		return EventType(paddleEvent)
	}
}

func parsePaddleTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
