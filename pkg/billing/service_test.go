package billing_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
	"github.com/rankfoundry/shopseo/svc/memstore"
	"github.com/rankfoundry/shopseo/svc/plansource"
)

const shop = "demo.myshopify.com"

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    billing.Service
	gw     *fakeGateway
	subs   *memstore.Subscriptions
	shops  *memstore.Shops
	ledger *tokens.Ledger
	cache  *mapCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	catalog, err := plansource.NewDefault().Load(ctx)
	require.NoError(t, err)

	clock := func() time.Time { return now }
	log := slog.New(slog.DiscardHandler)

	f := &fixture{
		gw:    newFakeGateway(),
		subs:  memstore.NewSubscriptions(),
		shops: memstore.NewShops(),
		cache: newMapCache(),
	}
	f.ledger = tokens.NewLedger(memstore.NewBalances(), catalog,
		tokens.WithClock(clock),
		tokens.WithLogger(log),
		tokens.WithInvalidator(f.cache),
	)
	f.svc = billing.NewService(billing.DefaultConfig("https://app.example.com"), catalog, f.gw, f.subs, f.shops, f.ledger,
		billing.WithClock(clock),
		billing.WithLogger(log),
		billing.WithViewCache(f.cache),
	)
	require.NoError(t, f.shops.Install(ctx, shop, "shpat_test"))
	return f
}

func (f *fixture) stored(t *testing.T) *billing.Subscription {
	t.Helper()
	sub, err := f.subs.Get(context.Background(), shop)
	require.NoError(t, err)
	return sub
}

func at(d time.Duration) *time.Time {
	v := now.Add(d)
	return &v
}

// mapCache is a ViewCache that counts invalidations.
type mapCache struct {
	mu            sync.Mutex
	views         map[string]*billing.Info
	invalidations int
}

func newMapCache() *mapCache { return &mapCache{views: make(map[string]*billing.Info)} }

func (c *mapCache) Get(_ context.Context, shop string) (*billing.Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[shop]; ok {
		return v, nil
	}
	return nil, billing.ErrCacheMiss
}

func (c *mapCache) Set(_ context.Context, shop string, info *billing.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[shop] = info
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, shop string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, shop)
	c.invalidations++
	return nil
}

func (c *mapCache) cached(shop string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.views[shop]
	return ok
}

func TestNewService_PanicsWithoutDependencies(t *testing.T) {
	t.Parallel()

	catalog, err := plansource.NewDefault().Load(context.Background())
	require.NoError(t, err)
	ledger := tokens.NewLedger(memstore.NewBalances(), catalog)
	cfg := billing.DefaultConfig("https://app.example.com")

	assert.Panics(t, func() {
		billing.NewService(cfg, nil, newFakeGateway(), memstore.NewSubscriptions(), memstore.NewShops(), ledger)
	})
	assert.Panics(t, func() {
		billing.NewService(cfg, catalog, nil, memstore.NewSubscriptions(), memstore.NewShops(), ledger)
	})
	assert.Panics(t, func() {
		billing.NewService(cfg, catalog, newFakeGateway(), memstore.NewSubscriptions(), memstore.NewShops(), nil)
	})
}

func TestRequestSubscribe_FirstSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	conf, err := f.svc.RequestSubscribe(ctx, billing.SubscribeCommand{Shop: shop, Plan: "starter", ReturnTo: "/dashboard"})
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/AppSubscription/1", conf.SubscriptionID)
	assert.Contains(t, conf.URL, conf.SubscriptionID)

	_, err = f.subs.Get(ctx, shop)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound, "no row before approval")

	reqs := f.gw.recurringRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 5, reqs[0].TrialDays)
	assert.Equal(t, "9.99", reqs[0].Price.Amount.StringFixed(2))
	assert.True(t, reqs[0].Test)
	assert.Contains(t, reqs[0].ReturnURL, "https://app.example.com/billing/callback?")
	assert.Contains(t, reqs[0].ReturnURL, "plan=starter")
	assert.Contains(t, reqs[0].ReturnURL, "returnTo=%2Fdashboard")

	sub, err := f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{
		Shop:     shop,
		Plan:     "starter",
		ChargeID: conf.SubscriptionID,
	})
	require.NoError(t, err)
	assert.Equal(t, "starter", sub.Plan)
	assert.Equal(t, billing.StatusActive, sub.Status)
	assert.Equal(t, conf.SubscriptionID, sub.SubscriptionID)
	require.NotNil(t, sub.TrialEndsAt)
	assert.Equal(t, now.AddDate(0, 0, 5), *sub.TrialEndsAt)
	assert.Nil(t, sub.ActivatedAt)
}

func TestHandleApprovalCallback_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	cb := billing.ApprovalCallback{Shop: shop, Plan: "enterprise", ChargeID: "gid://shopify/AppSubscription/7"}

	first, err := f.svc.HandleApprovalCallback(ctx, cb)
	require.NoError(t, err)
	bal, err := f.ledger.GetOrCreate(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bal.Balance)

	second, err := f.svc.HandleApprovalCallback(ctx, cb)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	bal, err = f.ledger.GetOrCreate(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), bal.Balance, "repeated callback grants nothing")
	assert.Equal(t, first, f.stored(t))
}

func TestHandleApprovalCallback_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Shop: shop, Plan: "platinum"})
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)

	_, err = f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Shop: shop})
	assert.ErrorIs(t, err, billing.ErrInvalidPlan, "first callback must name a plan")

	_, err = f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Plan: "starter"})
	assert.ErrorIs(t, err, billing.ErrInvalidCommand)
}

func TestRequestSubscribe_PlanChangeKeepsTrial(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	trialEnd := at(48 * time.Hour)
	f.subs.Put(&billing.Subscription{
		Shop:           shop,
		Plan:           "starter",
		Status:         billing.StatusActive,
		SubscriptionID: "gid://shopify/AppSubscription/90",
		TrialEndsAt:    trialEnd,
	})

	conf, err := f.svc.RequestSubscribe(ctx, billing.SubscribeCommand{Shop: shop, Plan: "growth"})
	require.NoError(t, err)

	reqs := f.gw.recurringRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 2, reqs[0].TrialDays)

	sub := f.stored(t)
	assert.Equal(t, "starter", sub.Plan)
	assert.Equal(t, "growth", sub.PendingPlan)
	assert.True(t, sub.PendingActivation)
	assert.Equal(t, conf.SubscriptionID, sub.SubscriptionID)
	assert.Equal(t, trialEnd, sub.TrialEndsAt)

	sub, err = f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Shop: shop, Plan: "growth", ChargeID: conf.SubscriptionID})
	require.NoError(t, err)
	assert.Equal(t, "growth", sub.Plan)
	assert.Empty(t, sub.PendingPlan)
	assert.False(t, sub.PendingActivation)
	assert.Equal(t, trialEnd, sub.TrialEndsAt)
}

func TestHandleApprovalCallback_SupersededCharge(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.subs.Put(&billing.Subscription{
		Shop:              shop,
		Plan:              "starter",
		Status:            billing.StatusActive,
		SubscriptionID:    "gid://shopify/AppSubscription/2",
		PendingPlan:       "pro",
		PendingActivation: true,
	})
	before := f.stored(t)

	sub, err := f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{
		Shop:     shop,
		Plan:     "growth",
		ChargeID: "gid://shopify/AppSubscription/1",
	})
	require.NoError(t, err)
	assert.Equal(t, before, sub)
	assert.Equal(t, before, f.stored(t), "late callback leaves the pending plan alone")

	sub, err = f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{
		Shop:     shop,
		Plan:     "pro",
		ChargeID: "gid://shopify/AppSubscription/2",
	})
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.Plan)
	assert.Empty(t, sub.PendingPlan)
}

func TestRequestSubscribe_TrialDays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		trialEnd *time.Time
		endTrial bool
		want     int
	}{
		{name: "partial day rounds up", trialEnd: at(36 * time.Hour), want: 2},
		{name: "expired trial gets default", trialEnd: at(-24 * time.Hour), want: 5},
		{name: "no trial gets default", want: 5},
		{name: "end trial", trialEnd: at(72 * time.Hour), endTrial: true, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.subs.Put(&billing.Subscription{
				Shop:        shop,
				Plan:        "starter",
				Status:      billing.StatusActive,
				TrialEndsAt: tt.trialEnd,
			})

			_, err := f.svc.RequestSubscribe(context.Background(), billing.SubscribeCommand{Shop: shop, Plan: "pro", EndTrial: tt.endTrial})
			require.NoError(t, err)

			reqs := f.gw.recurringRequests()
			require.Len(t, reqs, 1)
			assert.Equal(t, tt.want, reqs[0].TrialDays)
		})
	}
}

func TestHandleApprovalCallback_ExpiredTrialCleared(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.subs.Put(&billing.Subscription{
		Shop:           shop,
		Plan:           "starter",
		Status:         billing.StatusActive,
		SubscriptionID: "gid://shopify/AppSubscription/3",
		PendingPlan:    "pro",
		TrialEndsAt:    at(-time.Hour),
	})

	sub, err := f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Shop: shop, Plan: "pro"})
	require.NoError(t, err)
	assert.Equal(t, "pro", sub.Plan)
	assert.Nil(t, sub.TrialEndsAt)
}

func TestRequestSubscribe_Errors(t *testing.T) {
	t.Parallel()

	t.Run("validation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.RequestSubscribe(context.Background(), billing.SubscribeCommand{Plan: "starter", ReturnTo: "https://evil.example"})

		var cmdErr *billing.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Contains(t, cmdErr.Fields["shop"], "required")
		assert.Contains(t, cmdErr.Fields["returnTo"], "startswith")
		assert.ErrorIs(t, err, billing.ErrInvalidCommand)
	})

	t.Run("invalid plan", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.RequestSubscribe(context.Background(), billing.SubscribeCommand{Shop: shop, Plan: "platinum"})
		assert.ErrorIs(t, err, billing.ErrInvalidPlan)
		assert.Empty(t, f.gw.recurringRequests())
	})

	t.Run("shop not installed", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.RequestSubscribe(context.Background(), billing.SubscribeCommand{Shop: "other.myshopify.com", Plan: "starter"})
		assert.ErrorIs(t, err, billing.ErrShopNotFound)
	})

	t.Run("gateway rejected leaves row untouched", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		row := &billing.Subscription{Shop: shop, Plan: "starter", Status: billing.StatusActive, SubscriptionID: "gid://shopify/AppSubscription/5"}
		f.subs.Put(row)
		f.gw.setError(&billing.GatewayRejectedError{
			Op:         "appSubscriptionCreate",
			UserErrors: []billing.UserError{{Field: []string{"trialDays"}, Message: "is invalid"}},
		})

		_, err := f.svc.RequestSubscribe(context.Background(), billing.SubscribeCommand{Shop: shop, Plan: "growth"})
		require.ErrorIs(t, err, billing.ErrGatewayRejected)
		assert.Equal(t, "appSubscriptionCreate rejected: trialDays: is invalid", err.Error())

		sub := f.stored(t)
		assert.Empty(t, sub.PendingPlan)
		assert.Equal(t, row.SubscriptionID, sub.SubscriptionID)
	})
}

func TestActivate(t *testing.T) {
	t.Parallel()

	t.Run("keeps remaining trial", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		trialEnd := at(72 * time.Hour)
		f.subs.Put(&billing.Subscription{Shop: shop, Plan: "growth", Status: billing.StatusActive, TrialEndsAt: trialEnd})

		conf, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop})
		require.NoError(t, err)

		reqs := f.gw.recurringRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, 3, reqs[0].TrialDays)

		sub := f.stored(t)
		require.NotNil(t, sub.ActivatedAt)
		assert.Equal(t, now, *sub.ActivatedAt)
		assert.Equal(t, trialEnd, sub.TrialEndsAt)
		assert.Equal(t, conf.SubscriptionID, sub.SubscriptionID)
	})

	t.Run("end trial", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		f.subs.Put(&billing.Subscription{Shop: shop, Plan: "enterprise", Status: billing.StatusActive, TrialEndsAt: at(72 * time.Hour)})

		_, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop, EndTrial: true})
		require.NoError(t, err)

		reqs := f.gw.recurringRequests()
		require.Len(t, reqs, 1)
		assert.Zero(t, reqs[0].TrialDays)
		assert.Nil(t, f.stored(t).TrialEndsAt)

		bal, err := f.ledger.GetOrCreate(ctx, shop)
		require.NoError(t, err)
		assert.Equal(t, int64(100_000_000), bal.IncludedRemaining)
	})

	t.Run("already activated", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		f.gw.setActive("gid://shopify/AppSubscription/4")
		f.subs.Put(&billing.Subscription{
			Shop:           shop,
			Plan:           "growth",
			Status:         billing.StatusActive,
			SubscriptionID: "gid://shopify/AppSubscription/4",
			ActivatedAt:    at(-time.Hour),
		})

		_, err := f.svc.Activate(context.Background(), billing.ActivateCommand{Shop: shop})
		assert.ErrorIs(t, err, billing.ErrAlreadyActivated)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.svc.Activate(context.Background(), billing.ActivateCommand{Shop: shop})
		assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
	})

	t.Run("gateway failure rolls back activation", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		f.subs.Put(&billing.Subscription{Shop: shop, Plan: "growth", Status: billing.StatusActive, TrialEndsAt: at(72 * time.Hour)})
		f.gw.setError(billing.ErrGatewayUnreachable)

		_, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop, EndTrial: true})
		require.ErrorIs(t, err, billing.ErrGatewayUnreachable)

		sub := f.stored(t)
		assert.Nil(t, sub.ActivatedAt)
		assert.Nil(t, sub.TrialEndsAt, "ended trial stays ended")
		assert.Empty(t, sub.SubscriptionID)
	})

	t.Run("gateway failure after first install can be retried", func(t *testing.T) {
		t.Parallel()

		const installed = "gid://shopify/AppSubscription/100"
		f := newFixture(t)
		ctx := context.Background()
		f.gw.setActive(installed)
		f.subs.Put(&billing.Subscription{
			Shop:           shop,
			Plan:           "enterprise",
			Status:         billing.StatusActive,
			SubscriptionID: installed,
			TrialEndsAt:    at(72 * time.Hour),
		})
		f.gw.setError(billing.ErrGatewayUnreachable)

		_, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop, EndTrial: true})
		require.ErrorIs(t, err, billing.ErrGatewayUnreachable)

		sub := f.stored(t)
		assert.Nil(t, sub.ActivatedAt)
		assert.Nil(t, sub.TrialEndsAt)
		assert.Equal(t, installed, sub.SubscriptionID)

		bal, err := f.ledger.GetOrCreate(ctx, shop)
		require.NoError(t, err)
		assert.Zero(t, bal.Balance, "no tokens granted for a failed activation")

		f.gw.setError(nil)
		sub, err = f.svc.Reconcile(ctx, shop)
		require.NoError(t, err)
		assert.Equal(t, installed, sub.SubscriptionID)

		conf, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop, EndTrial: true})
		require.NoError(t, err)

		reqs := f.gw.recurringRequests()
		require.Len(t, reqs, 1)
		assert.Zero(t, reqs[0].TrialDays)

		sub = f.stored(t)
		require.NotNil(t, sub.ActivatedAt)
		assert.Equal(t, conf.SubscriptionID, sub.SubscriptionID)

		bal, err = f.ledger.GetOrCreate(ctx, shop)
		require.NoError(t, err)
		assert.Equal(t, int64(100_000_000), bal.IncludedRemaining)
	})
}

func TestActivate_AfterUnsubmittedActivation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.subs.Put(&billing.Subscription{
		Shop:        shop,
		Plan:        "growth",
		Status:      billing.StatusActive,
		ActivatedAt: at(-time.Hour),
		TrialEndsAt: at(72 * time.Hour),
	})

	conf, err := f.svc.Activate(ctx, billing.ActivateCommand{Shop: shop})
	require.NoError(t, err)
	assert.Zero(t, f.gw.fetches(), "repair needs no gateway lookup")

	reqs := f.gw.recurringRequests()
	require.Len(t, reqs, 1)
	assert.Zero(t, reqs[0].TrialDays, "trial was cleared by the repair")

	sub := f.stored(t)
	require.NotNil(t, sub.ActivatedAt)
	assert.Equal(t, now, *sub.ActivatedAt)
	assert.Nil(t, sub.TrialEndsAt)
	assert.Equal(t, conf.SubscriptionID, sub.SubscriptionID)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, billing.CancelCommand{Shop: shop})
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)

	f.subs.Put(&billing.Subscription{Shop: shop, Plan: "pro", Status: billing.StatusActive, SubscriptionID: "gid://shopify/AppSubscription/8"})

	sub, err := f.svc.Cancel(ctx, billing.CancelCommand{Shop: shop})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	assert.Equal(t, now, *sub.CancelledAt)
	assert.Equal(t, "gid://shopify/AppSubscription/8", sub.SubscriptionID)
	assert.Equal(t, []string{"gid://shopify/AppSubscription/8"}, f.gw.cancelled)

	_, err = f.svc.Cancel(ctx, billing.CancelCommand{Shop: shop})
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
}

func TestCancel_GatewayError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.subs.Put(&billing.Subscription{Shop: shop, Plan: "pro", Status: billing.StatusActive, SubscriptionID: "gid://shopify/AppSubscription/8"})
	f.gw.setError(billing.ErrGatewayUnreachable)

	_, err := f.svc.Cancel(context.Background(), billing.CancelCommand{Shop: shop})
	require.ErrorIs(t, err, billing.ErrGatewayUnreachable)
	assert.Equal(t, billing.StatusActive, f.stored(t).Status)
}

func TestBillingInfo(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.BillingInfo(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, billing.StateNone, info.State)
	assert.Nil(t, info.Plan)
	assert.Len(t, info.Plans, 4)
	assert.True(t, f.cache.cached(shop))

	_, err = f.svc.HandleApprovalCallback(ctx, billing.ApprovalCallback{Shop: shop, Plan: "growth", ChargeID: "gid://shopify/AppSubscription/2"})
	require.NoError(t, err)
	assert.False(t, f.cache.cached(shop), "write invalidates the cached view")

	info, err = f.svc.BillingInfo(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, billing.StateActive, info.State)
	require.NotNil(t, info.Plan)
	assert.Equal(t, "growth", info.Plan.Key)
	assert.Equal(t, "29.99", info.Plan.Price)
	assert.True(t, info.InTrialAt(now))
	assert.False(t, info.Activated())

	_, err = f.svc.BillingInfo(ctx, "")
	assert.ErrorIs(t, err, billing.ErrInvalidCommand)
}

func TestBillingInfo_GatewayDownDuringReconcile(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.subs.Put(&billing.Subscription{
		Shop:           shop,
		Plan:           "starter",
		Status:         billing.StatusActive,
		SubscriptionID: "gid://shopify/AppSubscription/2",
		PendingPlan:    "growth",
	})
	f.gw.setError(billing.ErrGatewayUnreachable)

	_, err := f.svc.BillingInfo(context.Background(), shop)
	assert.True(t, errors.Is(err, billing.ErrGatewayUnreachable))
	assert.Equal(t, "growth", f.stored(t).PendingPlan, "nothing cleared without the gateway's answer")
}
