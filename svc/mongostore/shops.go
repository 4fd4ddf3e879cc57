package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rankfoundry/shopseo/pkg/billing"
	mongopkg "github.com/rankfoundry/shopseo/pkg/mongo"
)

// TokenSealer encrypts access tokens for a shop.
type TokenSealer interface {
	Seal(scope, plaintext string) (string, error)
	Open(scope, ciphertext string) (string, error)
}

type shopDoc struct {
	Shop        string    `bson:"shop"`
	AccessToken string    `bson:"accessToken"`
	Scopes      string    `bson:"scopes,omitempty"`
	InstalledAt time.Time `bson:"installedAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// Shops implements billing.CredentialStore. Access tokens are stored sealed.
type Shops struct {
	coll   *mongo.Collection
	sealer TokenSealer
	now    func() time.Time
}

var _ billing.CredentialStore = (*Shops)(nil)

func NewShops(db *mongo.Database, sealer TokenSealer) *Shops {
	if sealer == nil {
		panic("mongostore: token sealer is required")
	}
	return &Shops{
		coll:   db.Collection(mongopkg.ShopsCollection),
		sealer: sealer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Install stores or replaces the offline access token of a shop.
func (s *Shops) Install(ctx context.Context, shop, accessToken, scopes string) error {
	sealed, err := s.sealer.Seal(shop, accessToken)
	if err != nil {
		return fmt.Errorf("mongostore: seal access token: %w", err)
	}
	now := s.now()
	_, err = s.coll.UpdateOne(ctx,
		bson.D{{Key: "shop", Value: shop}},
		bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "accessToken", Value: sealed},
				{Key: "scopes", Value: scopes},
				{Key: "updatedAt", Value: now},
			}},
			{Key: "$setOnInsert", Value: bson.D{{Key: "installedAt", Value: now}}},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongostore: install shop: %w", err)
	}
	return nil
}

func (s *Shops) Credentials(ctx context.Context, shop string) (billing.Credentials, error) {
	var doc shopDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "shop", Value: shop}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && doc.AccessToken == "") {
		return billing.Credentials{}, billing.ErrShopNotFound
	}
	if err != nil {
		return billing.Credentials{}, fmt.Errorf("mongostore: get shop: %w", err)
	}
	token, err := s.sealer.Open(shop, doc.AccessToken)
	if err != nil {
		return billing.Credentials{}, fmt.Errorf("mongostore: open access token: %w", err)
	}
	return billing.Credentials{Shop: shop, AccessToken: token}, nil
}

func (s *Shops) Delete(ctx context.Context, shop string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "shop", Value: shop}}); err != nil {
		return fmt.Errorf("mongostore: delete shop: %w", err)
	}
	return nil
}
