package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
	"github.com/rankfoundry/shopseo/svc/memstore"
)

const shop = "demo.myshopify.com"

func strPtr(s string) *string { return &s }

func TestSubscriptions_UpdateNeverCreates(t *testing.T) {
	t.Parallel()

	store := memstore.NewSubscriptions()
	_, err := store.Update(context.Background(), shop, billing.Update{PendingPlan: strPtr("pro")})
	assert.ErrorIs(t, err, billing.ErrStaleWrite)

	_, err = store.Get(context.Background(), shop)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
}

func TestSubscriptions_UpdateChecksExpect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewSubscriptions()
	store.Put(&billing.Subscription{Shop: shop, Plan: "starter", Status: billing.StatusActive, PendingPlan: "pro"})

	_, err := store.Update(ctx, shop, billing.Update{
		Expect: billing.Expect{PendingPlan: strPtr("growth")},
		Unset:  []billing.Field{billing.FieldPendingPlan},
	})
	assert.ErrorIs(t, err, billing.ErrStaleWrite)

	sub, err := store.Update(ctx, shop, billing.Update{
		Expect: billing.Expect{PendingPlan: strPtr("pro")},
		Unset:  []billing.Field{billing.FieldPendingPlan},
	})
	require.NoError(t, err)
	assert.Empty(t, sub.PendingPlan)
	assert.False(t, sub.UpdatedAt.IsZero())
}

func TestSubscriptions_FinalizeVariants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewSubscriptions()
	trial := time.Date(2026, 10, 23, 0, 0, 0, 0, time.UTC)

	_, err := store.Finalize(ctx, shop, billing.PlanChange{PendingPlan: "pro"})
	assert.ErrorIs(t, err, billing.ErrStaleWrite, "plan change must not create a row")

	sub, err := store.Finalize(ctx, shop, billing.FirstInstall{Plan: "starter", SubscriptionID: "gid://1", TrialEndsAt: &trial})
	require.NoError(t, err)
	assert.Equal(t, "starter", sub.Plan)
	require.NotNil(t, sub.TrialEndsAt)

	later := trial.AddDate(0, 0, 10)
	sub, err = store.Finalize(ctx, shop, billing.FirstInstall{Plan: "starter", SubscriptionID: "gid://1", TrialEndsAt: &later})
	require.NoError(t, err)
	assert.Equal(t, trial, *sub.TrialEndsAt, "trial is only written on insert")

	_, err = store.Finalize(ctx, shop, billing.Activation{Plan: "pro"})
	assert.ErrorIs(t, err, billing.ErrStaleWrite, "activation requires an activated row")
}

func TestSubscriptions_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewSubscriptions()
	store.Put(&billing.Subscription{Shop: shop, Plan: "starter"})

	a, err := store.Get(ctx, shop)
	require.NoError(t, err)
	a.Plan = "mutated"

	b, err := store.Get(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, "starter", b.Plan)
}

func TestBalances_VersionCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewBalances()
	require.NoError(t, store.Create(ctx, tokens.NewBalance(shop, time.Now())))
	assert.ErrorIs(t, store.Create(ctx, tokens.NewBalance(shop, time.Now())), tokens.ErrBalanceExists)

	require.NoError(t, store.Apply(ctx, shop, tokens.Mutation{ExpectVersion: 0, Balance: 10, At: time.Now()}))
	assert.ErrorIs(t, store.Apply(ctx, shop, tokens.Mutation{ExpectVersion: 0, Balance: 20}), tokens.ErrConflict)

	b, err := store.Get(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Balance)
	assert.Equal(t, int64(1), b.Version)
}

func TestBalances_ConcurrentApplyOneWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewBalances()
	require.NoError(t, store.Create(ctx, tokens.NewBalance(shop, time.Now())))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Apply(ctx, shop, tokens.Mutation{ExpectVersion: 0, Balance: int64(i)}) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestShops(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.NewShops()

	_, err := store.Credentials(ctx, shop)
	assert.ErrorIs(t, err, billing.ErrShopNotFound)

	require.NoError(t, store.Install(ctx, shop, "shpat_1"))
	creds, err := store.Credentials(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, billing.Credentials{Shop: shop, AccessToken: "shpat_1"}, creds)

	require.NoError(t, store.Delete(ctx, shop))
	_, err = store.Credentials(ctx, shop)
	assert.ErrorIs(t, err, billing.ErrShopNotFound)
}
