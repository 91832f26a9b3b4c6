package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Plan describes a purchasable subscription tier.
// PriceID must match the billing provider's price identifier so that webhook events
// can be mapped back to a plan.
type Plan struct {
	ID             int64  `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description" json:"description"`
	PriceID        string `yaml:"price_id" json:"price_id"` // provider's price ID (e.g., price_pro_monthly)
	DurationMonths int    `yaml:"duration_months" json:"duration_months"`
	Price          Money  `yaml:"price" json:"price"`
	Active         bool   `yaml:"active" json:"active"` // available for new purchases
}

// PeriodEndsAt calculates when one billing period started at startedAt ends.
func (p Plan) PeriodEndsAt(startedAt time.Time) time.Time {
	if p.DurationMonths <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, p.DurationMonths, 0).UTC()
}

// PlanResolver maps identifiers onto known plans.
// Both lookups return ErrPlanNotFound when nothing matches.
type PlanResolver interface {
	ResolvePlanByPriceID(ctx context.Context, priceID string) (Plan, error)
	PlanByID(ctx context.Context, id int64) (Plan, error)
}

// PlanLister is implemented by resolvers that can enumerate their catalog.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]Plan, error)
}

// PlanCatalog is a resolver that can also list its plans.
type PlanCatalog interface {
	PlanResolver
	PlanLister
}

// validatePlans ensures a catalog is internally consistent.
// Catches common configuration errors early to prevent runtime issues.
func validatePlans(plans []Plan) error {
	ids := make(map[int64]struct{}, len(plans))
	prices := make(map[string]struct{}, len(plans))

	for _, plan := range plans {
		if plan.ID <= 0 {
			return errors.Join(ErrInvalidPlanCatalog,
				fmt.Errorf("plan %q has non-positive id %d", plan.Name, plan.ID))
		}
		if plan.PriceID == "" {
			return errors.Join(ErrInvalidPlanCatalog,
				fmt.Errorf("plan %d has no price id", plan.ID))
		}
		if plan.DurationMonths < 0 {
			return errors.Join(ErrInvalidPlanCatalog,
				fmt.Errorf("plan %d has negative duration: %d", plan.ID, plan.DurationMonths))
		}
		if _, dup := ids[plan.ID]; dup {
			return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("duplicate plan id %d", plan.ID))
		}
		if _, dup := prices[plan.PriceID]; dup {
			return errors.Join(ErrInvalidPlanCatalog, fmt.Errorf("duplicate price id %s", plan.PriceID))
		}
		ids[plan.ID] = struct{}{}
		prices[plan.PriceID] = struct{}{}
	}
	return nil
}
