package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the provider-reported state of a subscription.
// There is no local transition graph: any status may follow any other.
type Status string

const (
	StatusActive            Status = "ACTIVE"
	StatusInactive          Status = "INACTIVE"
	StatusPastDue           Status = "PAST_DUE"
	StatusCanceled          Status = "CANCELED"
	StatusUnpaid            Status = "UNPAID"
	StatusIncomplete        Status = "INCOMPLETE"
	StatusIncompleteExpired Status = "INCOMPLETE_EXPIRED"
)

// Statuses lists every known status in declaration order.
var Statuses = []Status{
	StatusActive,
	StatusInactive,
	StatusPastDue,
	StatusCanceled,
	StatusUnpaid,
	StatusIncomplete,
	StatusIncompleteExpired,
}

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus maps a provider status string onto Status.
// Matching is case-insensitive. Trialing subscriptions grant access and are treated as ACTIVE,
// paused ones as INACTIVE.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch normalized {
	case "CANCELLED":
		return StatusCanceled, nil
	case "TRIALING":
		return StatusActive, nil
	case "PAUSED":
		return StatusInactive, nil
	}

	s := Status(normalized)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

// Event is a normalized provider notification about one subscription.
// Optional fields are zero/nil when the provider did not report them.
type Event struct {
	ExternalSubscriptionID string
	Status                 Status
	CustomerEmail          string
	PriceID                string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
}

// CheckoutRequest is issued synchronously right after a successful purchase.
type CheckoutRequest struct {
	UserEmail              string `json:"user_email"`
	PlanID                 int64  `json:"plan_id"`
	ExternalSubscriptionID string `json:"external_subscription_id"`
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`     // Amount in smallest currency unit (cents for USD)
	Currency string `yaml:"currency" json:"currency"` // ISO 4217 currency code
}

// User is the local account a subscription belongs to.
// Email is the correlation key shared with the billing provider.
type User struct {
	ID    uuid.UUID
	Email string
}
