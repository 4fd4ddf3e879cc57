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

type subscriptionDoc struct {
	Shop              string     `bson:"shop"`
	Plan              string     `bson:"plan"`
	Status            string     `bson:"status"`
	SubscriptionID    string     `bson:"shopifySubscriptionId,omitempty"`
	PendingPlan       string     `bson:"pendingPlan,omitempty"`
	PendingActivation bool       `bson:"pendingActivation"`
	ActivatedAt       *time.Time `bson:"activatedAt,omitempty"`
	TrialEndsAt       *time.Time `bson:"trialEndsAt,omitempty"`
	CancelledAt       *time.Time `bson:"cancelledAt,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

func (d subscriptionDoc) toDomain() *billing.Subscription {
	return &billing.Subscription{
		Shop:              d.Shop,
		Plan:              d.Plan,
		Status:            billing.Status(d.Status),
		SubscriptionID:    d.SubscriptionID,
		PendingPlan:       d.PendingPlan,
		PendingActivation: d.PendingActivation,
		ActivatedAt:       utc(d.ActivatedAt),
		TrialEndsAt:       utc(d.TrialEndsAt),
		CancelledAt:       utc(d.CancelledAt),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// Subscriptions implements billing.SubscriptionStore.
type Subscriptions struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ billing.SubscriptionStore = (*Subscriptions)(nil)

func NewSubscriptions(db *mongo.Database) *Subscriptions {
	return &Subscriptions{
		coll: db.Collection(mongopkg.SubscriptionsCollection),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Subscriptions) Get(ctx context.Context, shop string) (*billing.Subscription, error) {
	var doc subscriptionDoc
	err := s.coll.FindOne(ctx, bson.D{{Key: "shop", Value: shop}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, billing.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get subscription: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Subscriptions) Update(ctx context.Context, shop string, u billing.Update) (*billing.Subscription, error) {
	return s.findAndModify(ctx, expectFilter(shop, u.Expect), updateDocument(u, s.now()), false)
}

func (s *Subscriptions) Finalize(ctx context.Context, shop string, f billing.Finalization) (*billing.Subscription, error) {
	filter, update, upsert := finalizeDocuments(shop, f, s.now())
	sub, err := s.findAndModify(ctx, filter, update, upsert)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race; the caller re-reads and retries.
		return nil, billing.ErrStaleWrite
	}
	return sub, err
}

func (s *Subscriptions) Delete(ctx context.Context, shop string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "shop", Value: shop}}); err != nil {
		return fmt.Errorf("mongostore: delete subscription: %w", err)
	}
	return nil
}

func (s *Subscriptions) findAndModify(ctx context.Context, filter, update bson.D, upsert bool) (*billing.Subscription, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetUpsert(upsert)

	var doc subscriptionDoc
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, billing.ErrStaleWrite
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

// expectFilter matches the shop's row only while it still satisfies e.
// A null field matches both a missing and an explicit null value.
func expectFilter(shop string, e billing.Expect) bson.D {
	filter := bson.D{{Key: "shop", Value: shop}}
	if e.SubscriptionID != nil {
		filter = append(filter, nullable(string(billing.FieldSubscriptionID), *e.SubscriptionID))
	}
	if e.PendingPlan != nil {
		filter = append(filter, nullable(string(billing.FieldPendingPlan), *e.PendingPlan))
	}
	if e.Activated != nil {
		if *e.Activated {
			filter = append(filter, bson.E{Key: string(billing.FieldActivatedAt), Value: bson.D{{Key: "$ne", Value: nil}}})
		} else {
			filter = append(filter, bson.E{Key: string(billing.FieldActivatedAt), Value: nil})
		}
	}
	return filter
}

func nullable(key, value string) bson.E {
	if value == "" {
		return bson.E{Key: key, Value: nil}
	}
	return bson.E{Key: key, Value: value}
}

// updateDocument renders u as $set / $unset operators.
func updateDocument(u billing.Update, now time.Time) bson.D {
	set := bson.D{}
	if u.Plan != nil {
		set = append(set, bson.E{Key: "plan", Value: *u.Plan})
	}
	if u.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*u.Status)})
	}
	if u.SubscriptionID != nil {
		set = append(set, bson.E{Key: string(billing.FieldSubscriptionID), Value: *u.SubscriptionID})
	}
	if u.PendingPlan != nil {
		set = append(set, bson.E{Key: string(billing.FieldPendingPlan), Value: *u.PendingPlan})
	}
	if u.PendingActivation != nil {
		set = append(set, bson.E{Key: "pendingActivation", Value: *u.PendingActivation})
	}
	if u.ActivatedAt != nil {
		set = append(set, bson.E{Key: string(billing.FieldActivatedAt), Value: *u.ActivatedAt})
	}
	if u.TrialEndsAt != nil {
		set = append(set, bson.E{Key: string(billing.FieldTrialEndsAt), Value: *u.TrialEndsAt})
	}
	if u.CancelledAt != nil {
		set = append(set, bson.E{Key: string(billing.FieldCancelledAt), Value: *u.CancelledAt})
	}
	set = append(set, bson.E{Key: "updatedAt", Value: now})

	update := bson.D{{Key: "$set", Value: set}}
	if unset := unsetDocument(u.Unset...); len(unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: unset})
	}
	return update
}

func unsetDocument(fields ...billing.Field) bson.D {
	unset := bson.D{}
	for _, f := range fields {
		unset = append(unset, bson.E{Key: string(f), Value: ""})
	}
	return unset
}

// finalizeDocuments renders a finalization variant. Only FirstInstall
// upserts, and it writes trialEndsAt and createdAt through $setOnInsert.
func finalizeDocuments(shop string, f billing.Finalization, now time.Time) (filter, update bson.D, upsert bool) {
	switch v := f.(type) {
	case billing.FirstInstall:
		set := bson.D{
			{Key: "plan", Value: v.Plan},
			{Key: "status", Value: string(billing.StatusActive)},
			{Key: "pendingActivation", Value: false},
			{Key: "updatedAt", Value: now},
		}
		if v.SubscriptionID != "" {
			set = append(set, bson.E{Key: string(billing.FieldSubscriptionID), Value: v.SubscriptionID})
		}
		onInsert := bson.D{{Key: "createdAt", Value: now}}
		if v.TrialEndsAt != nil {
			onInsert = append(onInsert, bson.E{Key: string(billing.FieldTrialEndsAt), Value: *v.TrialEndsAt})
		}
		return bson.D{{Key: "shop", Value: shop}},
			bson.D{
				{Key: "$set", Value: set},
				{Key: "$unset", Value: unsetDocument(billing.FieldPendingPlan, billing.FieldCancelledAt)},
				{Key: "$setOnInsert", Value: onInsert},
			},
			true

	case billing.PlanChange:
		unset := []billing.Field{billing.FieldPendingPlan, billing.FieldCancelledAt}
		if v.ClearTrial {
			unset = append(unset, billing.FieldTrialEndsAt)
		}
		return bson.D{
				{Key: "shop", Value: shop},
				{Key: string(billing.FieldPendingPlan), Value: v.PendingPlan},
			},
			bson.D{
				{Key: "$set", Value: bson.D{
					{Key: "plan", Value: v.PendingPlan},
					{Key: "status", Value: string(billing.StatusActive)},
					{Key: "pendingActivation", Value: false},
					{Key: "updatedAt", Value: now},
				}},
				{Key: "$unset", Value: unsetDocument(unset...)},
			},
			false

	case billing.Activation:
		return bson.D{
				{Key: "shop", Value: shop},
				{Key: string(billing.FieldActivatedAt), Value: bson.D{{Key: "$ne", Value: nil}}},
				{Key: string(billing.FieldPendingPlan), Value: nil},
			},
			bson.D{{Key: "$set", Value: bson.D{
				{Key: "plan", Value: v.Plan},
				{Key: "updatedAt", Value: now},
			}}},
			false
	}
	panic(fmt.Sprintf("mongostore: unknown finalization %T", f))
}
