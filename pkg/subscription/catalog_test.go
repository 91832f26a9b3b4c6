package subscription_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

func TestNewInMemCatalog(t *testing.T) {
	t.Parallel()

	t.Run("resolves by price and id", func(t *testing.T) {
		t.Parallel()

		catalog := subscription.NewInMemCatalog(proPlan, basicPlan)
		ctx := context.Background()

		plan, err := catalog.ResolvePlanByPriceID(ctx, "price_basic")
		require.NoError(t, err)
		assert.Equal(t, basicPlan, plan)

		plan, err = catalog.PlanByID(ctx, proPlan.ID)
		require.NoError(t, err)
		assert.Equal(t, proPlan, plan)

		_, err = catalog.ResolvePlanByPriceID(ctx, "price_missing")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)

		_, err = catalog.PlanByID(ctx, 42)
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("lists only active plans", func(t *testing.T) {
		t.Parallel()

		retired := subscription.Plan{ID: 3, Name: "Legacy", PriceID: "price_legacy", Active: false}
		catalog := subscription.NewInMemCatalog(retired, basicPlan, proPlan)

		plans, err := catalog.ListPlans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []subscription.Plan{proPlan, basicPlan}, plans)

		// Retired plans still resolve so existing subscriptions keep working.
		_, err = catalog.ResolvePlanByPriceID(context.Background(), "price_legacy")
		assert.NoError(t, err)
	})

	t.Run("panics on invalid catalogs", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { subscription.NewInMemCatalog() })
		assert.Panics(t, func() { subscription.NewInMemCatalog(proPlan, proPlan) })
		assert.Panics(t, func() {
			subscription.NewInMemCatalog(subscription.Plan{ID: 5, Name: "No price"})
		})
		assert.Panics(t, func() {
			subscription.NewInMemCatalog(subscription.Plan{ID: 0, PriceID: "price_zero"})
		})
		assert.Panics(t, func() {
			subscription.NewInMemCatalog(subscription.Plan{ID: 6, PriceID: "price_neg", DurationMonths: -1})
		})
	})
}

func TestLoadCatalogYAML(t *testing.T) {
	t.Parallel()

	t.Run("valid document", func(t *testing.T) {
		t.Parallel()

		doc := `
plans:
  - id: 1
    name: Pro
    price_id: price_pro
    duration_months: 1
    price: {amount: 1999, currency: USD}
    active: true
  - id: 2
    name: Basic
    price_id: price_basic
    duration_months: 12
    price: {amount: 9900, currency: USD}
    active: true
`
		catalog, err := subscription.LoadCatalogYAML(strings.NewReader(doc))
		require.NoError(t, err)

		plans, err := catalog.ListPlans(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []subscription.Plan{proPlan, basicPlan}, plans)
	})

	t.Run("duplicate price ids", func(t *testing.T) {
		t.Parallel()

		doc := `
plans:
  - {id: 1, name: A, price_id: price_x}
  - {id: 2, name: B, price_id: price_x}
`
		_, err := subscription.LoadCatalogYAML(strings.NewReader(doc))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanCatalog)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.LoadCatalogYAML(strings.NewReader("plans: []\n"))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanCatalog)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.LoadCatalogYAML(strings.NewReader("plans: [\n"))
		assert.ErrorIs(t, err, subscription.ErrFailedToLoadPlans)
	})
}

func TestLoadPlansYAML(t *testing.T) {
	t.Parallel()

	doc := `
plans:
  - {id: 1, name: Pro, price_id: price_pro, active: true}
  - {id: 3, name: Legacy, price_id: price_legacy, active: false}
`
	plans, err := subscription.LoadPlansYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "price_legacy", plans[1].PriceID)
	assert.False(t, plans[1].Active)
}

// countingResolver counts lookups that reach the wrapped resolver.
type countingResolver struct {
	subscription.PlanResolver
	byPrice atomic.Int32
	byID    atomic.Int32
}

func (r *countingResolver) ResolvePlanByPriceID(ctx context.Context, priceID string) (subscription.Plan, error) {
	r.byPrice.Add(1)
	return r.PlanResolver.ResolvePlanByPriceID(ctx, priceID)
}

func (r *countingResolver) PlanByID(ctx context.Context, id int64) (subscription.Plan, error) {
	r.byID.Add(1)
	return r.PlanResolver.PlanByID(ctx, id)
}

func TestNewCachedResolver(t *testing.T) {
	t.Parallel()

	next := &countingResolver{PlanResolver: subscription.NewInMemCatalog(proPlan, basicPlan)}
	cached := subscription.NewCachedResolver(next, 8, time.Minute)
	ctx := context.Background()

	for range 3 {
		plan, err := cached.ResolvePlanByPriceID(ctx, "price_pro")
		require.NoError(t, err)
		assert.Equal(t, proPlan, plan)
	}
	assert.Equal(t, int32(1), next.byPrice.Load())

	// A price lookup also warms the id cache.
	plan, err := cached.PlanByID(ctx, proPlan.ID)
	require.NoError(t, err)
	assert.Equal(t, proPlan, plan)
	assert.Equal(t, int32(0), next.byID.Load())

	// Misses are not cached.
	for range 2 {
		_, err := cached.ResolvePlanByPriceID(ctx, "price_missing")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	}
	assert.Equal(t, int32(3), next.byPrice.Load())

	// countingResolver hides ListPlans, so the cache has nothing to enumerate.
	plans, err := cached.ListPlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)

	assert.Panics(t, func() { subscription.NewCachedResolver(nil, 8, 0) })
}
