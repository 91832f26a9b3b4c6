package subscription

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPlanNotFound         = errors.New("subscription plan not found")
	ErrAlreadyActive        = errors.New("user already has an active subscription")
	ErrProviderUnavailable  = errors.New("billing provider unavailable")
	ErrNotFound             = errors.New("billing provider resource not found")
	ErrProviderRejected     = errors.New("billing provider rejected the request")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrDuplicateExternalID  = errors.New("subscription with this external id already exists")

	ErrUnknownStatus        = errors.New("unknown subscription status")
	ErrMissingExternalID    = errors.New("external subscription id is required")
	ErrMissingEmail         = errors.New("user email is required")
	ErrInvalidPlanCatalog   = errors.New("invalid subscription plan catalog")
	ErrFailedToLoadPlans    = errors.New("failed to load subscription plans")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrLockNotAcquired      = errors.New("subscription lock not acquired")
	ErrNoActiveSubscription = errors.New("no active subscription found")
	ErrMissingPriceID       = errors.New("price ID is required")
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
	ErrInvalidEnvironment   = errors.New("invalid billing provider environment")
	ErrWebhookVerification  = errors.New("webhook signature verification failed")
	ErrMissingCustomerEmail = errors.New("billing provider returned customer without email")
)

// retryableError marks a failure that the webhook transport should report back to the
// provider so the event gets redelivered.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable wraps err so that IsRetryable reports true for it. Nil stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	var re *retryableError
	if errors.As(err, &re) {
		return err
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether the caller should let the provider redeliver the event.
// Provider outages are always retryable regardless of where they surface.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, ErrProviderUnavailable)
}
