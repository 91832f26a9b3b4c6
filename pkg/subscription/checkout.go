package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// CompleteCheckout records a purchase right after the provider reports a successful checkout.
//
// Unlike the webhook path, an unknown user is a hard failure here, and a user who already
// holds an ACTIVE subscription is rejected with ErrAlreadyActive before the provider is asked.
// If a webhook created the record first, the call degrades into an update.
func (e *Engine) CompleteCheckout(ctx context.Context, req CheckoutRequest) (*Subscription, error) {
	email := strings.TrimSpace(req.UserEmail)
	if email == "" {
		return nil, ErrMissingEmail
	}
	if strings.TrimSpace(req.ExternalSubscriptionID) == "" {
		return nil, ErrMissingExternalID
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return nil, Retryable(fmt.Errorf("failed to find user: %w", err))
	}

	active, err := e.store.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, Retryable(fmt.Errorf("failed to list active subscriptions: %w", err))
	}
	if len(active) > 0 {
		e.logger.InfoContext(ctx, "checkout rejected, user already subscribed",
			logger.UserID(user.ID),
			logger.ExternalSubscriptionID(active[0].ExternalSubscriptionID),
		)
		return nil, ErrAlreadyActive
	}

	plan, err := e.plans.PlanByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrPlanNotFound, req.PlanID)
		}
		return nil, Retryable(fmt.Errorf("failed to load plan: %w", err))
	}

	snap, err := e.fetchSubscription(ctx, req.ExternalSubscriptionID)
	if err != nil {
		e.metrics.EventFailed(PathCheckout, IsRetryable(err))
		return nil, err
	}
	if !snap.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, snap.Status)
	}

	unlock, err := e.locker.Lock(ctx, req.ExternalSubscriptionID)
	if err != nil {
		e.metrics.EventFailed(PathCheckout, true)
		return nil, Retryable(errors.Join(ErrLockNotAcquired, err))
	}
	defer unlock()

	return e.create(ctx, createTarget{
		user: user,
		plan: plan,
		event: Event{
			ExternalSubscriptionID: req.ExternalSubscriptionID,
			Status:                 snap.Status,
			CustomerEmail:          user.Email,
			PriceID:                plan.PriceID,
			PeriodStart:            snap.PeriodStart,
			PeriodEnd:              snap.PeriodEnd,
		},
	}, PathCheckout)
}

// CurrentSubscription returns the user's most recently updated ACTIVE record.
// Returns ErrNoActiveSubscription if there is none.
func (e *Engine) CurrentSubscription(ctx context.Context, email string) (*Subscription, error) {
	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	active, err := e.store.ListActiveByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	if len(active) == 0 {
		return nil, ErrNoActiveSubscription
	}
	return active[0], nil
}

// HasActiveSubscription reports whether the user holds an ACTIVE record.
func (e *Engine) HasActiveSubscription(ctx context.Context, email string) (bool, error) {
	_, err := e.CurrentSubscription(ctx, email)
	if errors.Is(err, ErrNoActiveSubscription) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// History returns every record of the user, most recently updated first.
func (e *Engine) History(ctx context.Context, email string) ([]*Subscription, error) {
	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	subs, err := e.store.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// Plans lists purchasable plans. Returns an empty list when the configured
// resolver can't enumerate its plans.
func (e *Engine) Plans(ctx context.Context) ([]Plan, error) {
	lister, ok := e.plans.(PlanLister)
	if !ok {
		return []Plan{}, nil
	}
	return lister.ListPlans(ctx)
}

// CancelSubscription cancels the user's current subscription at the provider and
// records the cancellation locally without waiting for the webhook.
func (e *Engine) CancelSubscription(ctx context.Context, email string) (*Subscription, error) {
	current, err := e.CurrentSubscription(ctx, email)
	if err != nil {
		return nil, err
	}

	if err := e.cancelAtProvider(ctx, current.ExternalSubscriptionID); err != nil {
		return nil, err
	}

	return e.Apply(ctx, Event{
		ExternalSubscriptionID: current.ExternalSubscriptionID,
		Status:                 StatusCanceled,
	})
}
