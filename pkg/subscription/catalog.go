package subscription

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/subsync/pkg/cache"
)

type inMemCatalog struct {
	mu      sync.RWMutex
	byID    map[int64]Plan
	byPrice map[string]Plan
}

// NewInMemCatalog returns an in-memory PlanResolver over a copy of the given plans.
// Panics on an empty or inconsistent catalog so misconfiguration fails at startup.
func NewInMemCatalog(plans ...Plan) PlanCatalog {
	if len(plans) < 1 {
		panic("subscription: at least one plan is required")
	}
	if err := validatePlans(plans); err != nil {
		panic(err)
	}

	c := &inMemCatalog{
		byID:    make(map[int64]Plan, len(plans)),
		byPrice: make(map[string]Plan, len(plans)),
	}
	for _, plan := range plans {
		c.byID[plan.ID] = plan
		c.byPrice[plan.PriceID] = plan
	}
	return c
}

func (c *inMemCatalog) ResolvePlanByPriceID(_ context.Context, priceID string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.byPrice[priceID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (c *inMemCatalog) PlanByID(_ context.Context, id int64) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.byID[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// ListPlans returns the active plans ordered by id.
func (c *inMemCatalog) ListPlans(_ context.Context) ([]Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plans := make([]Plan, 0, len(c.byID))
	for _, plan := range c.byID {
		if plan.Active {
			plans = append(plans, plan)
		}
	}
	slices.SortFunc(plans, func(a, b Plan) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return plans, nil
}

type yamlCatalog struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlansYAML reads and validates every plan of a catalog document of the form:
//
//	plans:
//	  - id: 7
//	    name: Pro
//	    price_id: price_pro_monthly
//	    duration_months: 1
//	    price: {amount: 1999, currency: USD}
//	    active: true
//
// Retired plans (active: false) are returned too.
func LoadPlansYAML(r io.Reader) ([]Plan, error) {
	var doc yamlCatalog
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if len(doc.Plans) == 0 {
		return nil, errors.Join(ErrInvalidPlanCatalog, errors.New("catalog has no plans"))
	}
	if err := validatePlans(doc.Plans); err != nil {
		return nil, err
	}
	return doc.Plans, nil
}

// LoadCatalogYAML builds an in-memory catalog from a LoadPlansYAML document.
func LoadCatalogYAML(r io.Reader) (PlanCatalog, error) {
	plans, err := LoadPlansYAML(r)
	if err != nil {
		return nil, err
	}
	return NewInMemCatalog(plans...), nil
}

// cachedResolver memoizes plan lookups from a slower source such as the database.
// Misses are not cached so that newly added plans become visible immediately.
type cachedResolver struct {
	next    PlanResolver
	byPrice *cache.LRUCache[string, Plan]
	byID    *cache.LRUCache[int64, Plan]
}

// NewCachedResolver wraps next with bounded LRU caches whose entries expire after ttl,
// so plan edits in the source show up without a restart. A zero ttl never expires.
func NewCachedResolver(next PlanResolver, capacity int, ttl time.Duration) PlanCatalog {
	if next == nil {
		panic("subscription: PlanResolver is required")
	}
	return &cachedResolver{
		next:    next,
		byPrice: cache.NewLRUCache[string, Plan](capacity, ttl),
		byID:    cache.NewLRUCache[int64, Plan](capacity, ttl),
	}
}

func (c *cachedResolver) ResolvePlanByPriceID(ctx context.Context, priceID string) (Plan, error) {
	if plan, ok := c.byPrice.Get(priceID); ok {
		return plan, nil
	}
	plan, err := c.next.ResolvePlanByPriceID(ctx, priceID)
	if err != nil {
		return Plan{}, err
	}
	c.byPrice.Put(priceID, plan)
	c.byID.Put(plan.ID, plan)
	return plan, nil
}

func (c *cachedResolver) PlanByID(ctx context.Context, id int64) (Plan, error) {
	if plan, ok := c.byID.Get(id); ok {
		return plan, nil
	}
	plan, err := c.next.PlanByID(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	c.byID.Put(id, plan)
	c.byPrice.Put(plan.PriceID, plan)
	return plan, nil
}

// ListPlans is passed through uncached when the wrapped resolver supports it.
func (c *cachedResolver) ListPlans(ctx context.Context) ([]Plan, error) {
	lister, ok := c.next.(PlanLister)
	if !ok {
		return []Plan{}, nil
	}
	return lister.ListPlans(ctx)
}
