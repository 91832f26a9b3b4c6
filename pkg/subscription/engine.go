package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

// DefaultProviderTimeout bounds provider calls when no WithProviderTimeout option is given.
const DefaultProviderTimeout = 10 * time.Second

// Engine reconciles provider events into local subscription records.
// All writes for one external subscription id are serialized through the Locker.
type Engine struct {
	store    Store
	users    UserDirectory
	plans    PlanResolver
	provider Provider

	locker          Locker
	logger          *slog.Logger
	notifier        Notifier
	metrics         MetricsRecorder
	now             func() time.Time
	providerTimeout time.Duration
}

// NewEngine creates a reconciliation engine.
// Panics if any dependency is nil to fail fast during initialization.
func NewEngine(store Store, users UserDirectory, plans PlanResolver, provider Provider, opts ...EngineOption) *Engine {
	if store == nil {
		panic("subscription: store is required")
	}
	if users == nil {
		panic("subscription: user directory is required")
	}
	if plans == nil {
		panic("subscription: plan resolver is required")
	}
	if provider == nil {
		panic("subscription: provider is required")
	}

	e := &Engine{
		store:           store,
		users:           users,
		plans:           plans,
		provider:        provider,
		locker:          NewKeyedMutex(),
		logger:          slog.New(slog.DiscardHandler),
		notifier:        noopNotifier{},
		metrics:         noopMetrics{},
		now:             time.Now,
		providerTimeout: DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// createTarget carries everything the create path needs once user and plan are known.
type createTarget struct {
	user  User
	plan  Plan
	event Event
}

// Apply reconciles one provider event into local state and returns the resulting record.
//
// An existing record for the external id is overwritten with the event's status
// and any reported period bounds. Otherwise a record is created: the user is resolved
// by email and the plan by price id, asking the provider for whatever the event lacks.
// Creating an ACTIVE record cancels the user's other ACTIVE records in the same write.
//
// Errors for which IsRetryable reports true should make the provider redeliver the event.
func (e *Engine) Apply(ctx context.Context, event Event) (*Subscription, error) {
	if strings.TrimSpace(event.ExternalSubscriptionID) == "" {
		return nil, ErrMissingExternalID
	}
	if !event.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, event.Status)
	}

	unlock, err := e.locker.Lock(ctx, event.ExternalSubscriptionID)
	if err != nil {
		e.metrics.EventFailed(PathUpdate, true)
		return nil, Retryable(errors.Join(ErrLockNotAcquired, err))
	}
	defer unlock()

	existing, err := e.store.GetByExternalID(ctx, event.ExternalSubscriptionID)
	switch {
	case err == nil:
		return e.update(ctx, existing, event)
	case errors.Is(err, ErrSubscriptionNotFound):
	default:
		e.metrics.EventFailed(PathUpdate, true)
		return nil, Retryable(fmt.Errorf("failed to load subscription %s: %w", event.ExternalSubscriptionID, err))
	}

	target, err := e.resolveWebhookTarget(ctx, event)
	if err != nil {
		e.metrics.EventFailed(PathCreate, IsRetryable(err))
		e.logger.WarnContext(ctx, "failed to resolve subscription owner",
			logger.ExternalSubscriptionID(event.ExternalSubscriptionID),
			logger.Retryable(IsRetryable(err)),
			logger.Error(err),
		)
		return nil, err
	}
	return e.create(ctx, target, PathCreate)
}

// resolveWebhookTarget fills in user and plan for a record first seen through a webhook.
// The provider is asked at most once for the subscription itself.
func (e *Engine) resolveWebhookTarget(ctx context.Context, event Event) (createTarget, error) {
	var snap *ProviderSubscription
	snapshot := func() (*ProviderSubscription, error) {
		if snap != nil {
			return snap, nil
		}
		s, err := e.fetchSubscription(ctx, event.ExternalSubscriptionID)
		if err != nil {
			return nil, err
		}
		snap = s
		return snap, nil
	}

	email := strings.TrimSpace(event.CustomerEmail)
	if email == "" {
		s, err := snapshot()
		if err != nil {
			return createTarget{}, err
		}
		email, err = e.fetchCustomerEmail(ctx, s.CustomerID)
		if err != nil {
			return createTarget{}, err
		}
	}

	user, err := e.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// The local account may not be committed yet; let the provider retry.
			return createTarget{}, Retryable(fmt.Errorf("%w: %s", ErrUserNotFound, email))
		}
		return createTarget{}, Retryable(fmt.Errorf("failed to find user: %w", err))
	}

	priceID := event.PriceID
	if priceID == "" {
		s, err := snapshot()
		if err != nil {
			return createTarget{}, err
		}
		priceID = s.PriceID
	}
	if priceID == "" {
		return createTarget{}, Retryable(fmt.Errorf("%w: subscription %s", ErrMissingPriceID, event.ExternalSubscriptionID))
	}

	plan, err := e.plans.ResolvePlanByPriceID(ctx, priceID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			// The plan may be seeded after the provider starts sending events; keep redelivering.
			return createTarget{}, Retryable(fmt.Errorf("%w: price %s", ErrPlanNotFound, priceID))
		}
		return createTarget{}, Retryable(fmt.Errorf("failed to resolve plan: %w", err))
	}

	if snap != nil {
		if event.PeriodStart == nil {
			event.PeriodStart = snap.PeriodStart
		}
		if event.PeriodEnd == nil {
			event.PeriodEnd = snap.PeriodEnd
		}
	}
	event.CustomerEmail = email
	event.PriceID = priceID

	return createTarget{user: user, plan: plan, event: event}, nil
}

// create inserts a new record. Must be called while holding the lock for the external id.
func (e *Engine) create(ctx context.Context, t createTarget, path string) (*Subscription, error) {
	now := e.now().UTC()
	rec := &Subscription{
		ID:                     uuid.New(),
		UserID:                 t.user.ID,
		PlanID:                 t.plan.ID,
		ExternalSubscriptionID: t.event.ExternalSubscriptionID,
		Status:                 t.event.Status,
		CurrentPeriodStart:     cloneTime(t.event.PeriodStart),
		CurrentPeriodEnd:       cloneTime(t.event.PeriodEnd),
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	var superseded []*Subscription
	if rec.IsActive() {
		active, err := e.store.ListActiveByUser(ctx, t.user.ID)
		if err != nil {
			e.metrics.EventFailed(path, true)
			return nil, Retryable(fmt.Errorf("failed to list active subscriptions: %w", err))
		}
		for _, old := range active {
			if old.ExternalSubscriptionID == rec.ExternalSubscriptionID {
				continue
			}
			old.Status = StatusCanceled
			old.UpdatedAt = notBefore(now, old.UpdatedAt)
			superseded = append(superseded, old)
		}
	}

	err := e.store.Create(ctx, rec, superseded)
	if errors.Is(err, ErrDuplicateExternalID) {
		// Another writer inserted the record first; treat the event as an update.
		existing, getErr := e.store.GetByExternalID(ctx, rec.ExternalSubscriptionID)
		if getErr != nil {
			e.metrics.EventFailed(path, true)
			return nil, Retryable(fmt.Errorf("failed to load subscription after duplicate insert: %w", getErr))
		}
		return e.update(ctx, existing, t.event)
	}
	if err != nil {
		e.metrics.EventFailed(path, true)
		return nil, Retryable(fmt.Errorf("failed to create subscription: %w", err))
	}

	for _, old := range superseded {
		e.logger.WarnContext(ctx, "canceled superseded subscription",
			logger.UserID(t.user.ID),
			logger.ExternalSubscriptionID(old.ExternalSubscriptionID),
			slog.String("superseded_by", rec.ExternalSubscriptionID),
		)
	}
	if len(superseded) > 0 {
		e.metrics.SubscriptionsSuperseded(len(superseded))
	}
	e.metrics.EventApplied(path, rec.Status)

	e.logger.InfoContext(ctx, "subscription created",
		logger.UserID(t.user.ID),
		logger.ExternalSubscriptionID(rec.ExternalSubscriptionID),
		logger.SubscriptionStatus(string(rec.Status)),
		logger.PlanID(rec.PlanID),
	)

	if err := e.notifier.SubscriptionCreated(ctx, t.user, t.plan, rec.Clone()); err != nil {
		e.logger.WarnContext(ctx, "subscription notification failed",
			logger.ExternalSubscriptionID(rec.ExternalSubscriptionID),
			logger.Error(err),
		)
	}
	return rec, nil
}

// update overwrites status and reported period bounds. Last write wins.
// Must be called while holding the lock for the external id.
func (e *Engine) update(ctx context.Context, rec *Subscription, event Event) (*Subscription, error) {
	prevStatus := rec.Status

	rec.Status = event.Status
	if event.PeriodStart != nil {
		rec.CurrentPeriodStart = cloneTime(event.PeriodStart)
	}
	if event.PeriodEnd != nil {
		rec.CurrentPeriodEnd = cloneTime(event.PeriodEnd)
	}
	rec.UpdatedAt = notBefore(e.now().UTC(), rec.UpdatedAt)

	if err := e.store.Update(ctx, rec); err != nil {
		e.metrics.EventFailed(PathUpdate, true)
		return nil, Retryable(fmt.Errorf("failed to update subscription %s: %w", rec.ExternalSubscriptionID, err))
	}

	e.metrics.EventApplied(PathUpdate, rec.Status)
	e.logger.InfoContext(ctx, "subscription updated",
		logger.ExternalSubscriptionID(rec.ExternalSubscriptionID),
		slog.String("previous_status", string(prevStatus)),
		logger.SubscriptionStatus(string(rec.Status)),
	)
	return rec, nil
}

func (e *Engine) fetchSubscription(ctx context.Context, externalID string) (*ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	snap, err := e.provider.FetchSubscription(ctx, externalID)
	if err != nil {
		return nil, providerError(ctx, err)
	}
	return snap, nil
}

func (e *Engine) fetchCustomerEmail(ctx context.Context, customerID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	email, err := e.provider.FetchCustomerEmail(ctx, customerID)
	if err != nil {
		return "", providerError(ctx, err)
	}
	return email, nil
}

func (e *Engine) cancelAtProvider(ctx context.Context, externalID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()

	if err := e.provider.CancelSubscription(ctx, externalID); err != nil {
		return providerError(ctx, err)
	}
	return nil
}

// providerError turns deadline and cancellation failures into ErrProviderUnavailable.
func providerError(ctx context.Context, err error) error {
	if errors.Is(err, ErrProviderUnavailable) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrProviderUnavailable, err)
	}
	return err
}

// notBefore keeps UpdatedAt monotonic when the wall clock steps backwards.
func notBefore(now, prev time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}
