package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection names shared by the stores.
const (
	SubscriptionsCollection = "subscriptions"
	TokenBalancesCollection = "token_balances"
	ShopsCollection         = "shops"
)

// Indexes lists the indexes each collection needs. Every collection is keyed
// by a unique shop domain; conditional updates rely on that uniqueness.
func Indexes() map[string][]mongo.IndexModel {
	shopKey := func(name string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: "shop", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(name),
		}
	}
	return map[string][]mongo.IndexModel{
		SubscriptionsCollection: {
			shopKey("shop_unique"),
			{
				Keys:    bson.D{{Key: "shopifySubscriptionId", Value: 1}},
				Options: options.Index().SetName("subscription_id").SetSparse(true),
			},
		},
		TokenBalancesCollection: {
			shopKey("shop_unique"),
			{
				Keys:    bson.D{{Key: "purchases.chargeId", Value: 1}},
				Options: options.Index().SetName("purchase_charge_id"),
			},
		},
		ShopsCollection: {shopKey("shop_unique")},
	}
}

// EnsureIndexes creates the indexes returned by Indexes. Creating an index
// that already exists with the same definition is a no-op on the server.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for coll, models := range Indexes() {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Join(ErrCreateIndexes, fmt.Errorf("%s: %w", coll, err))
		}
	}
	return nil
}
