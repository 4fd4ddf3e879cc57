package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	mongopkg "github.com/rankfoundry/shopseo/pkg/mongo"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

type grantDoc struct {
	Plan           string    `bson:"plan"`
	SubscriptionID string    `bson:"subscriptionId,omitempty"`
	Tokens         int64     `bson:"tokens"`
	GrantedAt      time.Time `bson:"grantedAt"`
}

type purchaseDoc struct {
	ID          string          `bson:"id"`
	USDAmount   bson.Decimal128 `bson:"usdAmount"`
	Tokens      int64           `bson:"tokens"`
	ChargeID    string          `bson:"chargeId,omitempty"`
	Status      string          `bson:"status"`
	CreatedAt   time.Time       `bson:"createdAt"`
	CompletedAt *time.Time      `bson:"completedAt,omitempty"`
}

type usageDoc struct {
	ID       string         `bson:"id"`
	Kind     string         `bson:"kind"`
	Feature  string         `bson:"feature,omitempty"`
	Delta    int64          `bson:"delta"`
	Metadata map[string]any `bson:"metadata,omitempty"`
	At       time.Time      `bson:"at"`
}

type balanceDoc struct {
	Shop              string        `bson:"shop"`
	Balance           int64         `bson:"balance"`
	TotalPurchased    int64         `bson:"totalPurchased"`
	TotalUsed         int64         `bson:"totalUsed"`
	IncludedRemaining int64         `bson:"includedRemaining"`
	IncludedGrant     *grantDoc     `bson:"includedGrant,omitempty"`
	LastPurchase      *time.Time    `bson:"lastPurchase,omitempty"`
	LastRefreshID     string        `bson:"lastRefreshId,omitempty"`
	Purchases         []purchaseDoc `bson:"purchases"`
	Usage             []usageDoc    `bson:"usage"`
	Version           int64         `bson:"version"`
	CreatedAt         time.Time     `bson:"createdAt"`
	UpdatedAt         time.Time     `bson:"updatedAt"`
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("mongostore: encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v bson.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("mongostore: decode amount %s: %w", v, err)
	}
	return d, nil
}

func toGrantDoc(g *tokens.Grant) *grantDoc {
	if g == nil {
		return nil
	}
	return &grantDoc{Plan: g.Plan, SubscriptionID: g.SubscriptionID, Tokens: g.Tokens, GrantedAt: g.GrantedAt}
}

func toPurchaseDoc(p tokens.Purchase) (purchaseDoc, error) {
	amount, err := toDecimal128(p.USDAmount)
	if err != nil {
		return purchaseDoc{}, err
	}
	return purchaseDoc{
		ID:          p.ID,
		USDAmount:   amount,
		Tokens:      p.Tokens,
		ChargeID:    p.ChargeID,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		CompletedAt: p.CompletedAt,
	}, nil
}

func toUsageDoc(u tokens.Usage) usageDoc {
	return usageDoc{
		ID:       u.ID,
		Kind:     string(u.Kind),
		Feature:  u.Feature,
		Delta:    u.Delta,
		Metadata: u.Metadata,
		At:       u.At,
	}
}

func toBalanceDoc(b *tokens.Balance) (balanceDoc, error) {
	doc := balanceDoc{
		Shop:              b.Shop,
		Balance:           b.Balance,
		TotalPurchased:    b.TotalPurchased,
		TotalUsed:         b.TotalUsed,
		IncludedRemaining: b.IncludedRemaining,
		IncludedGrant:     toGrantDoc(b.IncludedGrant),
		LastPurchase:      b.LastPurchase,
		LastRefreshID:     b.LastRefreshID,
		Purchases:         make([]purchaseDoc, 0, len(b.Purchases)),
		Usage:             make([]usageDoc, 0, len(b.Usage)),
		Version:           b.Version,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
	for _, p := range b.Purchases {
		pd, err := toPurchaseDoc(p)
		if err != nil {
			return balanceDoc{}, err
		}
		doc.Purchases = append(doc.Purchases, pd)
	}
	for _, u := range b.Usage {
		doc.Usage = append(doc.Usage, toUsageDoc(u))
	}
	return doc, nil
}

func (d balanceDoc) toDomain() (*tokens.Balance, error) {
	b := &tokens.Balance{
		Shop:              d.Shop,
		Balance:           d.Balance,
		TotalPurchased:    d.TotalPurchased,
		TotalUsed:         d.TotalUsed,
		IncludedRemaining: d.IncludedRemaining,
		LastPurchase:      utc(d.LastPurchase),
		LastRefreshID:     d.LastRefreshID,
		Purchases:         make([]tokens.Purchase, 0, len(d.Purchases)),
		Usage:             make([]tokens.Usage, 0, len(d.Usage)),
		Version:           d.Version,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	if g := d.IncludedGrant; g != nil {
		b.IncludedGrant = &tokens.Grant{Plan: g.Plan, SubscriptionID: g.SubscriptionID, Tokens: g.Tokens, GrantedAt: g.GrantedAt.UTC()}
	}
	for _, p := range d.Purchases {
		amount, err := fromDecimal128(p.USDAmount)
		if err != nil {
			return nil, err
		}
		b.Purchases = append(b.Purchases, tokens.Purchase{
			ID:          p.ID,
			USDAmount:   amount,
			Tokens:      p.Tokens,
			ChargeID:    p.ChargeID,
			Status:      tokens.PurchaseStatus(p.Status),
			CreatedAt:   p.CreatedAt.UTC(),
			CompletedAt: utc(p.CompletedAt),
		})
	}
	for _, u := range d.Usage {
		b.Usage = append(b.Usage, tokens.Usage{
			ID:       u.ID,
			Kind:     tokens.EntryKind(u.Kind),
			Feature:  u.Feature,
			Delta:    u.Delta,
			Metadata: u.Metadata,
			At:       u.At.UTC(),
		})
	}
	return b, nil
}

// Balances implements tokens.Store.
type Balances struct {
	coll *mongo.Collection
}

var _ tokens.Store = (*Balances)(nil)

func NewBalances(db *mongo.Database) *Balances {
	return &Balances{coll: db.Collection(mongopkg.TokenBalancesCollection)}
}

func (s *Balances) Get(ctx context.Context, shop string) (*tokens.Balance, error) {
	var doc balanceDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "shop", Value: shop}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, tokens.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get balance: %w", err)
	}
	return doc.toDomain()
}

func (s *Balances) Create(ctx context.Context, b *tokens.Balance) error {
	doc, err := toBalanceDoc(b)
	if err != nil {
		return err
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tokens.ErrBalanceExists
		}
		return fmt.Errorf("mongostore: create balance: %w", err)
	}
	return nil
}

func (s *Balances) Apply(ctx context.Context, shop string, m tokens.Mutation) error {
	filter, update, err := mutationDocuments(shop, m)
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongostore: apply balance mutation: %w", err)
	}
	if res.MatchedCount == 0 {
		return tokens.ErrConflict
	}
	return nil
}

func (s *Balances) Delete(ctx context.Context, shop string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "shop", Value: shop}}); err != nil {
		return fmt.Errorf("mongostore: delete balance: %w", err)
	}
	return nil
}

// mutationDocuments renders m as a version-guarded update. Completing a
// pending purchase also requires that purchase to still be pending.
func mutationDocuments(shop string, m tokens.Mutation) (filter, update bson.D, err error) {
	filter = bson.D{
		{Key: "shop", Value: shop},
		{Key: "version", Value: m.ExpectVersion},
	}

	set := bson.D{
		{Key: "balance", Value: m.Balance},
		{Key: "totalPurchased", Value: m.TotalPurchased},
		{Key: "totalUsed", Value: m.TotalUsed},
		{Key: "includedRemaining", Value: m.IncludedRemaining},
		{Key: "includedGrant", Value: toGrantDoc(m.IncludedGrant)},
		{Key: "lastPurchase", Value: m.LastPurchase},
		{Key: "lastRefreshId", Value: m.LastRefreshID},
		{Key: "version", Value: m.ExpectVersion + 1},
		{Key: "updatedAt", Value: m.At},
	}

	if m.CompletePurchase != "" {
		filter = append(filter, bson.E{Key: "purchases", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "chargeId", Value: m.CompletePurchase},
			{Key: "status", Value: string(tokens.PurchasePending)},
		}}}})
		set = append(set,
			bson.E{Key: "purchases.$.status", Value: string(tokens.PurchaseCompleted)},
			bson.E{Key: "purchases.$.completedAt", Value: m.At},
		)
	}

	update = bson.D{{Key: "$set", Value: set}}

	push := bson.D{}
	if m.AppendPurchase != nil {
		pd, err := toPurchaseDoc(*m.AppendPurchase)
		if err != nil {
			return nil, nil, err
		}
		push = append(push, bson.E{Key: "purchases", Value: pd})
	}
	if m.AppendUsage != nil {
		push = append(push, bson.E{Key: "usage", Value: toUsageDoc(*m.AppendUsage)})
	}
	if len(push) > 0 {
		update = append(update, bson.E{Key: "$push", Value: push})
	}
	return filter, update, nil
}
