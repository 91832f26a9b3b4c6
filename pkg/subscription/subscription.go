package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the locally owned mirror of one provider subscription.
// ExternalSubscriptionID is globally unique; records are never deleted, cancellation
// is a status transition.
type Subscription struct {
	ID                     uuid.UUID  `json:"id"`
	UserID                 uuid.UUID  `json:"user_id"`
	PlanID                 int64      `json:"plan_id"`
	ExternalSubscriptionID string     `json:"external_subscription_id"`
	Status                 Status     `json:"status"`
	CurrentPeriodStart     *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// IsActive returns true if the subscription currently grants access.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsCanceled returns true if the subscription was canceled.
func (s *Subscription) IsCanceled() bool {
	return s.Status == StatusCanceled
}

// DaysRemainingAt returns the number of whole days left in the current period at a given time.
// Returns 0 if the period end is unknown or already passed.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	if s.CurrentPeriodEnd == nil {
		return 0
	}

	remaining := s.CurrentPeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}

	// Round up partial days to be user-friendly
	days := remaining.Hours() / 24
	return int(days + 0.5)
}

// Clone returns a deep copy so callers can't mutate store-owned state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.CurrentPeriodStart = cloneTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = cloneTime(s.CurrentPeriodEnd)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
