package billing_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/svc/memstore"
)

func TestGuard_Reconcile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		active  string
		row     billing.Subscription
		check   func(t *testing.T, sub *billing.Subscription)
		fetches int
	}{
		{
			name: "unsubmitted activation",
			row: billing.Subscription{
				Plan:        "growth",
				ActivatedAt: at(-time.Hour),
				TrialEndsAt: at(48 * time.Hour),
			},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Nil(t, sub.ActivatedAt)
				assert.Nil(t, sub.TrialEndsAt)
			},
		},
		{
			name:   "pending plan never approved falls back to active charge",
			active: "gid://shopify/AppSubscription/1",
			row: billing.Subscription{
				Plan:              "starter",
				SubscriptionID:    "gid://shopify/AppSubscription/2",
				PendingPlan:       "growth",
				PendingActivation: true,
			},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Equal(t, "starter", sub.Plan)
				assert.Empty(t, sub.PendingPlan)
				assert.False(t, sub.PendingActivation)
				assert.Equal(t, "gid://shopify/AppSubscription/1", sub.SubscriptionID)
			},
			fetches: 1,
		},
		{
			name: "pending plan without any active charge",
			row: billing.Subscription{
				Plan:              "starter",
				SubscriptionID:    "gid://shopify/AppSubscription/2",
				PendingPlan:       "growth",
				PendingActivation: true,
				TrialEndsAt:       at(24 * time.Hour),
			},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Empty(t, sub.PendingPlan)
				assert.Empty(t, sub.SubscriptionID)
				assert.NotNil(t, sub.TrialEndsAt)
			},
			fetches: 1,
		},
		{
			name:   "approved pending plan is kept",
			active: "gid://shopify/AppSubscription/2",
			row: billing.Subscription{
				Plan:           "starter",
				SubscriptionID: "gid://shopify/AppSubscription/2",
				PendingPlan:    "growth",
			},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Equal(t, "growth", sub.PendingPlan)
				assert.Equal(t, "gid://shopify/AppSubscription/2", sub.SubscriptionID)
			},
			fetches: 1,
		},
		{
			name:   "activation not approved",
			active: "gid://shopify/AppSubscription/1",
			row: billing.Subscription{
				Plan:           "pro",
				SubscriptionID: "gid://shopify/AppSubscription/3",
				ActivatedAt:    at(-time.Hour),
				TrialEndsAt:    at(24 * time.Hour),
			},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Nil(t, sub.ActivatedAt)
				assert.Nil(t, sub.TrialEndsAt)
				assert.Empty(t, sub.SubscriptionID)
			},
			fetches: 1,
		},
		{
			name: "consistent row needs no lookup",
			row:  billing.Subscription{Plan: "starter", SubscriptionID: "gid://shopify/AppSubscription/1"},
			check: func(t *testing.T, sub *billing.Subscription) {
				assert.Equal(t, "gid://shopify/AppSubscription/1", sub.SubscriptionID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()
			f.gw.setActive(tt.active)
			row := tt.row
			row.Shop = shop
			row.Status = billing.StatusActive
			f.subs.Put(&row)

			sub, err := f.svc.Reconcile(ctx, shop)
			require.NoError(t, err)
			tt.check(t, sub)
			assert.Equal(t, sub, f.stored(t))
			assert.Equal(t, tt.fetches, f.gw.fetches())

			again, err := f.svc.Reconcile(ctx, shop)
			require.NoError(t, err)
			assert.Equal(t, sub, again, "second pass changes nothing")
		})
	}
}

func TestGuard_NoRow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sub, err := f.svc.Reconcile(context.Background(), shop)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Zero(t, f.gw.fetches())
}

func TestNewGuard_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { billing.NewGuard(nil, nil, nil, nil, nil) })
}

// racingStore lets another writer replace the row right before the first
// conditional update lands.
type racingStore struct {
	*memstore.Subscriptions
	once  sync.Once
	other *billing.Subscription
}

func (r *racingStore) Update(ctx context.Context, shop string, u billing.Update) (*billing.Subscription, error) {
	r.once.Do(func() { r.Subscriptions.Put(r.other) })
	return r.Subscriptions.Update(ctx, shop, u)
}

func TestGuard_LostRaceIsNotARepair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	subs := memstore.NewSubscriptions()
	subs.Put(&billing.Subscription{
		Shop:              shop,
		Plan:              "starter",
		Status:            billing.StatusActive,
		SubscriptionID:    "gid://shopify/AppSubscription/2",
		PendingPlan:       "growth",
		PendingActivation: true,
	})
	store := &racingStore{
		Subscriptions: subs,
		other: &billing.Subscription{
			Shop:           shop,
			Plan:           "growth",
			Status:         billing.StatusActive,
			SubscriptionID: "gid://shopify/AppSubscription/2",
		},
	}

	shops := memstore.NewShops()
	require.NoError(t, shops.Install(ctx, shop, "shpat_test"))
	gw := newFakeGateway()
	gw.setActive("gid://shopify/AppSubscription/1")
	cache := newMapCache()

	guard := billing.NewGuard(store, shops, gw, cache, slog.New(slog.DiscardHandler))
	sub, err := guard.Reconcile(ctx, shop)
	require.NoError(t, err)

	assert.Equal(t, "growth", sub.Plan, "the concurrent write wins")
	assert.Equal(t, "gid://shopify/AppSubscription/2", sub.SubscriptionID)
	assert.Empty(t, sub.PendingPlan)
	assert.Zero(t, cache.invalidations, "nothing was cleared")
}
