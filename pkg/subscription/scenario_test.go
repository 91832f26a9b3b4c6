package subscription_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/subscription"
)

func TestScenario_CheckoutThenCanceledWebhook(t *testing.T) {
	t.Parallel()

	store := subscription.NewMemoryStore()
	user := subscription.User{ID: uuid.New(), Email: "a@x.com"}
	provider := &mockProvider{}
	engine := subscription.NewEngine(store,
		subscription.NewMemoryUsers(user),
		subscription.NewInMemCatalog(proPlan),
		provider,
	)
	ctx := context.Background()

	provider.On("FetchSubscription", mock.Anything, "sub_100").Return(&subscription.ProviderSubscription{
		ID:     "sub_100",
		Status: subscription.StatusActive,
	}, nil).Once()

	created, err := engine.CompleteCheckout(ctx, subscription.CheckoutRequest{
		UserEmail:              "a@x.com",
		PlanID:                 proPlan.ID,
		ExternalSubscriptionID: "sub_100",
	})
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, created.Status)

	canceled, err := engine.Apply(ctx, subscription.Event{
		ExternalSubscriptionID: "sub_100",
		Status:                 subscription.StatusCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, canceled.ID)
	assert.Equal(t, subscription.StatusCanceled, canceled.Status)

	active, err := store.ListActiveByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
	provider.AssertExpectations(t)
}

func TestScenario_UnknownEmailWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Apply(ctx, subscription.Event{
		ExternalSubscriptionID: "sub_999",
		Status:                 subscription.StatusActive,
		CustomerEmail:          "nobody@x.com",
		PriceID:                proPlan.PriceID,
	})
	assert.ErrorIs(t, err, subscription.ErrUserNotFound)

	_, err = f.store.GetByExternalID(ctx, "sub_999")
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

// TestProperty_AtMostOneActive feeds random sequences of creates and non-activating updates
// through the engine and checks that no user ever ends up with two ACTIVE records.
func TestProperty_AtMostOneActive(t *testing.T) {
	t.Parallel()

	nonActive := []subscription.Status{
		subscription.StatusInactive,
		subscription.StatusPastDue,
		subscription.StatusCanceled,
		subscription.StatusUnpaid,
		subscription.StatusIncomplete,
		subscription.StatusIncompleteExpired,
	}

	for seed := range uint64(25) {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			t.Parallel()

			rng := rand.New(rand.NewPCG(seed, seed*7+1))
			f := newFixture(t)
			ctx := context.Background()
			var known []string

			for step := range 40 {
				f.clock.Advance(time.Second)

				if len(known) == 0 || rng.IntN(2) == 0 {
					id := fmt.Sprintf("sub_%d", step)
					status := subscription.StatusActive
					if rng.IntN(3) == 0 {
						status = nonActive[rng.IntN(len(nonActive))]
					}
					_, err := f.engine.Apply(ctx, subscription.Event{
						ExternalSubscriptionID: id,
						Status:                 status,
						CustomerEmail:          f.user.Email,
						PriceID:                proPlan.PriceID,
					})
					require.NoError(t, err)
					known = append(known, id)
				} else {
					_, err := f.engine.Apply(ctx, subscription.Event{
						ExternalSubscriptionID: known[rng.IntN(len(known))],
						Status:                 nonActive[rng.IntN(len(nonActive))],
					})
					require.NoError(t, err)
				}

				active, err := f.store.ListActiveByUser(ctx, f.user.ID)
				require.NoError(t, err)
				require.LessOrEqual(t, len(active), 1, "step %d", step)
			}
		})
	}
}
