package subscription_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) FetchSubscription(ctx context.Context, externalID string) (*subscription.ProviderSubscription, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.ProviderSubscription), args.Error(1)
}

func (m *mockProvider) FetchCustomerEmail(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CancelSubscription(ctx context.Context, externalID string) error {
	args := m.Called(ctx, externalID)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SubscriptionCreated(ctx context.Context, user subscription.User, plan subscription.Plan, sub *subscription.Subscription) error {
	args := m.Called(ctx, user, plan, sub)
	return args.Error(0)
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	proPlan = subscription.Plan{
		ID:             1,
		Name:           "Pro",
		PriceID:        "price_pro",
		DurationMonths: 1,
		Price:          subscription.Money{Amount: 1999, Currency: "USD"},
		Active:         true,
	}
	basicPlan = subscription.Plan{
		ID:             2,
		Name:           "Basic",
		PriceID:        "price_basic",
		DurationMonths: 12,
		Price:          subscription.Money{Amount: 9900, Currency: "USD"},
		Active:         true,
	}
)

type fixture struct {
	engine   *subscription.Engine
	store    subscription.Store
	provider *mockProvider
	clock    *fakeClock
	user     subscription.User
}

func newFixture(t *testing.T, opts ...subscription.EngineOption) *fixture {
	t.Helper()
	return newFixtureWithStore(t, subscription.NewMemoryStore(), opts...)
}

func newFixtureWithStore(t *testing.T, store subscription.Store, opts ...subscription.EngineOption) *fixture {
	t.Helper()

	f := &fixture{
		store:    store,
		provider: &mockProvider{},
		clock:    newFakeClock(),
		user:     subscription.User{ID: uuid.New(), Email: "jane@example.com"},
	}
	users := subscription.NewMemoryUsers(f.user)
	catalog := subscription.NewInMemCatalog(proPlan, basicPlan)

	opts = append([]subscription.EngineOption{subscription.WithClock(f.clock.Now)}, opts...)
	f.engine = subscription.NewEngine(f.store, users, catalog, f.provider, opts...)

	t.Cleanup(func() { f.provider.AssertExpectations(t) })
	return f
}

func ptrTime(t time.Time) *time.Time { return &t }
