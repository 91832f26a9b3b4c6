package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/subsync/pkg/email"
	"github.com/dmitrymomot/subsync/pkg/email/templates"
	"github.com/dmitrymomot/subsync/pkg/logger"
)

// Apply paths reported to MetricsRecorder.
const (
	PathCreate   = "create"
	PathUpdate   = "update"
	PathCheckout = "checkout"
)

// Notifier is called after a new record has been committed.
// Implementations must not block for long; failures are logged, never propagated.
type Notifier interface {
	SubscriptionCreated(ctx context.Context, user User, plan Plan, sub *Subscription) error
}

// MetricsRecorder receives engine outcomes.
type MetricsRecorder interface {
	EventApplied(path string, status Status)
	SubscriptionsSuperseded(n int)
	EventFailed(path string, retryable bool)
}

type noopMetrics struct{}

func (noopMetrics) EventApplied(string, Status)  {}
func (noopMetrics) SubscriptionsSuperseded(int)  {}
func (noopMetrics) EventFailed(string, bool)     {}

type noopNotifier struct{}

func (noopNotifier) SubscriptionCreated(context.Context, User, Plan, *Subscription) error { return nil }

// EmailNotifier sends a confirmation email when a purchase becomes active.
type EmailNotifier struct {
	sender  email.EmailSender
	appName string
	log     *slog.Logger
}

// NewEmailNotifier creates a notifier backed by an email sender.
// Panics if sender is nil to fail fast during initialization.
func NewEmailNotifier(sender email.EmailSender, appName string, log *slog.Logger) *EmailNotifier {
	if sender == nil {
		panic("subscription: email sender is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &EmailNotifier{sender: sender, appName: appName, log: log}
}

// SubscriptionCreated emails the user when the new record is ACTIVE.
func (n *EmailNotifier) SubscriptionCreated(ctx context.Context, user User, plan Plan, sub *Subscription) error {
	if !sub.IsActive() {
		return nil
	}

	body, err := templates.Render(ctx, templates.SubscriptionConfirmed(templates.SubscriptionConfirmedData{
		AppName:   n.appName,
		PlanName:  plan.Name,
		PeriodEnd: sub.CurrentPeriodEnd,
	}))
	if err != nil {
		return fmt.Errorf("failed to render confirmation email: %w", err)
	}

	if err := n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   user.Email,
		Subject:  "Subscription Confirmed - " + plan.Name,
		BodyHTML: body,
		Tag:      "subscription-confirmation",
	}); err != nil {
		n.log.ErrorContext(ctx, "failed to send subscription confirmation",
			logger.UserID(user.ID),
			logger.ExternalSubscriptionID(sub.ExternalSubscriptionID),
			logger.Error(err),
		)
		return err
	}
	return nil
}
