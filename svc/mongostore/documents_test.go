package mongostore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

const testShop = "demo.myshopify.com"

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func sp(s string) *string { return &s }
func bp(b bool) *bool     { return &b }

func lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestExpectFilter(t *testing.T) {
	t.Parallel()

	t.Run("shop only", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, bson.D{{Key: "shop", Value: testShop}}, expectFilter(testShop, billing.Expect{}))
	})

	t.Run("empty expectation means null", func(t *testing.T) {
		t.Parallel()
		f := expectFilter(testShop, billing.Expect{SubscriptionID: sp(""), PendingPlan: sp("pro")})
		v, ok := lookup(f, "shopifySubscriptionId")
		require.True(t, ok)
		assert.Nil(t, v)
		v, ok = lookup(f, "pendingPlan")
		require.True(t, ok)
		assert.Equal(t, "pro", v)
	})

	t.Run("activation flag", func(t *testing.T) {
		t.Parallel()
		f := expectFilter(testShop, billing.Expect{Activated: bp(true)})
		v, _ := lookup(f, "activatedAt")
		assert.Equal(t, bson.D{{Key: "$ne", Value: nil}}, v)

		f = expectFilter(testShop, billing.Expect{Activated: bp(false)})
		v, ok := lookup(f, "activatedAt")
		require.True(t, ok)
		assert.Nil(t, v)
	})
}

func TestUpdateDocument(t *testing.T) {
	t.Parallel()

	status := billing.StatusCancelled
	u := updateDocument(billing.Update{
		Status:      &status,
		CancelledAt: &testNow,
		Unset:       []billing.Field{billing.FieldPendingPlan, billing.FieldTrialEndsAt},
	}, testNow)

	set, ok := lookup(u, "$set")
	require.True(t, ok)
	setDoc := set.(bson.D)
	v, _ := lookup(setDoc, "status")
	assert.Equal(t, "cancelled", v)
	v, _ = lookup(setDoc, "updatedAt")
	assert.Equal(t, testNow, v)
	_, ok = lookup(setDoc, "plan")
	assert.False(t, ok)

	unset, ok := lookup(u, "$unset")
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "pendingPlan", Value: ""}, {Key: "trialEndsAt", Value: ""}}, unset)
}

func TestUpdateDocument_NoUnset(t *testing.T) {
	t.Parallel()

	u := updateDocument(billing.Update{PendingActivation: bp(true)}, testNow)
	_, ok := lookup(u, "$unset")
	assert.False(t, ok)
}

func TestFinalizeDocuments(t *testing.T) {
	t.Parallel()

	t.Run("first install upserts and writes trial on insert only", func(t *testing.T) {
		t.Parallel()
		trial := testNow.AddDate(0, 0, 5)
		filter, update, upsert := finalizeDocuments(testShop, billing.FirstInstall{
			Plan: "starter", SubscriptionID: "gid://shopify/AppSubscription/1", TrialEndsAt: &trial,
		}, testNow)

		assert.True(t, upsert)
		assert.Equal(t, bson.D{{Key: "shop", Value: testShop}}, filter)

		set, _ := lookup(update, "$set")
		_, inSet := lookup(set.(bson.D), "trialEndsAt")
		assert.False(t, inSet)

		onInsert, ok := lookup(update, "$setOnInsert")
		require.True(t, ok)
		v, _ := lookup(onInsert.(bson.D), "trialEndsAt")
		assert.Equal(t, trial, v)
	})

	t.Run("first install without trial", func(t *testing.T) {
		t.Parallel()
		_, update, _ := finalizeDocuments(testShop, billing.FirstInstall{Plan: "starter"}, testNow)
		onInsert, _ := lookup(update, "$setOnInsert")
		_, ok := lookup(onInsert.(bson.D), "trialEndsAt")
		assert.False(t, ok)
		set, _ := lookup(update, "$set")
		_, ok = lookup(set.(bson.D), "shopifySubscriptionId")
		assert.False(t, ok)
	})

	t.Run("plan change requires pending plan", func(t *testing.T) {
		t.Parallel()
		filter, update, upsert := finalizeDocuments(testShop, billing.PlanChange{PendingPlan: "pro", ClearTrial: true}, testNow)
		assert.False(t, upsert)
		v, _ := lookup(filter, "pendingPlan")
		assert.Equal(t, "pro", v)
		unset, _ := lookup(update, "$unset")
		_, ok := lookup(unset.(bson.D), "trialEndsAt")
		assert.True(t, ok)
	})

	t.Run("activation requires activated row", func(t *testing.T) {
		t.Parallel()
		filter, update, upsert := finalizeDocuments(testShop, billing.Activation{Plan: "pro"}, testNow)
		assert.False(t, upsert)
		v, _ := lookup(filter, "activatedAt")
		assert.Equal(t, bson.D{{Key: "$ne", Value: nil}}, v)
		set, _ := lookup(update, "$set")
		v, _ = lookup(set.(bson.D), "plan")
		assert.Equal(t, "pro", v)
	})
}

func TestMutationDocuments(t *testing.T) {
	t.Parallel()

	t.Run("debit pushes usage under version guard", func(t *testing.T) {
		t.Parallel()
		filter, update, err := mutationDocuments(testShop, tokens.Mutation{
			ExpectVersion: 3,
			Balance:       90,
			TotalUsed:     10,
			AppendUsage:   &tokens.Usage{ID: "u1", Kind: tokens.KindDebit, Delta: -10, At: testNow},
			At:            testNow,
		})
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "shop", Value: testShop}, {Key: "version", Value: int64(3)}}, filter)

		set, _ := lookup(update, "$set")
		v, _ := lookup(set.(bson.D), "version")
		assert.Equal(t, int64(4), v)

		push, ok := lookup(update, "$push")
		require.True(t, ok)
		usage, _ := lookup(push.(bson.D), "usage")
		assert.Equal(t, int64(-10), usage.(usageDoc).Delta)
	})

	t.Run("completing a purchase targets the pending element", func(t *testing.T) {
		t.Parallel()
		filter, update, err := mutationDocuments(testShop, tokens.Mutation{
			ExpectVersion:    1,
			CompletePurchase: "gid://shopify/AppPurchaseOneTime/9",
			At:               testNow,
		})
		require.NoError(t, err)
		_, ok := lookup(filter, "purchases")
		assert.True(t, ok)

		set, _ := lookup(update, "$set")
		v, _ := lookup(set.(bson.D), "purchases.$.status")
		assert.Equal(t, "completed", v)
		_, ok = lookup(update, "$push")
		assert.False(t, ok)
	})
}

func TestBalanceDocRoundTrip(t *testing.T) {
	t.Parallel()

	completed := testNow.Add(time.Minute)
	b := tokens.NewBalance(testShop, testNow)
	b.Balance = 150_000
	b.TotalPurchased = 100_000
	b.IncludedRemaining = 50_000
	b.IncludedGrant = &tokens.Grant{Plan: "starter", Tokens: 50_000, GrantedAt: testNow}
	b.Purchases = []tokens.Purchase{{
		ID: "p1", USDAmount: decimal.RequireFromString("1.50"), Tokens: 150_000,
		ChargeID: "c1", Status: tokens.PurchaseCompleted, CreatedAt: testNow, CompletedAt: &completed,
	}}
	b.Usage = []tokens.Usage{{ID: "u1", Kind: tokens.KindIncludedSet, Delta: 50_000, At: testNow}}

	doc, err := toBalanceDoc(b)
	require.NoError(t, err)
	assert.Equal(t, "1.5", doc.Purchases[0].USDAmount.String())

	back, err := doc.toDomain()
	require.NoError(t, err)
	assert.True(t, back.Purchases[0].USDAmount.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, b.Balance, back.Balance)
	assert.Equal(t, *b.IncludedGrant, *back.IncludedGrant)
	assert.Equal(t, tokens.Replay(*b), tokens.Replay(*back))
}
