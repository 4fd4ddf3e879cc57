package billing

import (
	"context"
	"time"
)

// SubscriptionStore persists the per-shop subscription row.
// Only Finalize with a FirstInstall may create a row.
type SubscriptionStore interface {
	// Get returns ErrSubscriptionNotFound when the shop has no row.
	Get(ctx context.Context, shop string) (*Subscription, error)

	// Update applies u atomically when the row exists and satisfies u.Expect.
	// Returns ErrStaleWrite otherwise. Never creates a row.
	Update(ctx context.Context, shop string, u Update) (*Subscription, error)

	// Finalize applies a confirmed approval callback. Returns ErrStaleWrite when
	// a non-upserting variant no longer matches the stored row.
	Finalize(ctx context.Context, shop string, f Finalization) (*Subscription, error)

	Delete(ctx context.Context, shop string) error
}

// CredentialStore resolves the gateway credentials of installed shops.
type CredentialStore interface {
	// Credentials returns ErrShopNotFound when the shop is not installed.
	Credentials(ctx context.Context, shop string) (Credentials, error)
	Delete(ctx context.Context, shop string) error
}

// Field names a nullable subscription field that an update may clear.
type Field string

const (
	FieldSubscriptionID Field = "shopifySubscriptionId"
	FieldPendingPlan    Field = "pendingPlan"
	FieldActivatedAt    Field = "activatedAt"
	FieldTrialEndsAt    Field = "trialEndsAt"
	FieldCancelledAt    Field = "cancelledAt"
)

// Expect lists preconditions on the stored row. Nil fields are not checked.
// A pointer to "" requires the field to be null.
type Expect struct {
	SubscriptionID *string
	PendingPlan    *string
	Activated      *bool
}

// Matches reports whether sub satisfies the preconditions.
func (e Expect) Matches(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	if e.SubscriptionID != nil && sub.SubscriptionID != *e.SubscriptionID {
		return false
	}
	if e.PendingPlan != nil && sub.PendingPlan != *e.PendingPlan {
		return false
	}
	if e.Activated != nil && sub.IsActivated() != *e.Activated {
		return false
	}
	return true
}

// Update is a conditional partial write. Nil fields are left untouched;
// fields listed in Unset are cleared.
type Update struct {
	Expect Expect

	Plan              *string
	Status            *Status
	SubscriptionID    *string
	PendingPlan       *string
	PendingActivation *bool
	ActivatedAt       *time.Time
	TrialEndsAt       *time.Time
	CancelledAt       *time.Time

	Unset []Field
}

// ApplyTo writes u into sub in memory, the same way a store applies it.
func (u Update) ApplyTo(sub *Subscription, now time.Time) {
	if u.Plan != nil {
		sub.Plan = *u.Plan
	}
	if u.Status != nil {
		sub.Status = *u.Status
	}
	if u.SubscriptionID != nil {
		sub.SubscriptionID = *u.SubscriptionID
	}
	if u.PendingPlan != nil {
		sub.PendingPlan = *u.PendingPlan
	}
	if u.PendingActivation != nil {
		sub.PendingActivation = *u.PendingActivation
	}
	if u.ActivatedAt != nil {
		sub.ActivatedAt = cloneTime(u.ActivatedAt)
	}
	if u.TrialEndsAt != nil {
		sub.TrialEndsAt = cloneTime(u.TrialEndsAt)
	}
	if u.CancelledAt != nil {
		sub.CancelledAt = cloneTime(u.CancelledAt)
	}
	for _, f := range u.Unset {
		switch f {
		case FieldSubscriptionID:
			sub.SubscriptionID = ""
		case FieldPendingPlan:
			sub.PendingPlan = ""
		case FieldActivatedAt:
			sub.ActivatedAt = nil
		case FieldTrialEndsAt:
			sub.TrialEndsAt = nil
		case FieldCancelledAt:
			sub.CancelledAt = nil
		}
	}
	sub.UpdatedAt = now
}

// Finalization is the closed set of ways an approval callback may write a
// subscription row: FirstInstall, PlanChange or Activation.
type Finalization interface {
	Kind() string
	// Apply computes the finalized row from the stored one (nil when absent).
	// ok is false when the variant does not apply to the stored row.
	Apply(stored *Subscription, shop string, now time.Time) (result *Subscription, ok bool)
	sealed()
}

// FirstInstall materializes the row after the first approved subscription.
// It is the only variant allowed to create a row. TrialEndsAt is only
// written when the row is created, so repeated callbacks never extend a trial.
type FirstInstall struct {
	Plan           string
	SubscriptionID string
	TrialEndsAt    *time.Time
}

func (FirstInstall) Kind() string { return "first_install" }
func (FirstInstall) sealed()      {}

func (f FirstInstall) Apply(stored *Subscription, shop string, now time.Time) (*Subscription, bool) {
	sub := stored.Clone()
	if sub == nil {
		sub = &Subscription{
			Shop:        shop,
			TrialEndsAt: cloneTime(f.TrialEndsAt),
			CreatedAt:   now,
		}
	}
	sub.Plan = f.Plan
	sub.Status = StatusActive
	if f.SubscriptionID != "" {
		sub.SubscriptionID = f.SubscriptionID
	}
	sub.PendingPlan = ""
	sub.PendingActivation = false
	sub.CancelledAt = nil
	sub.UpdatedAt = now
	return sub, true
}

// PlanChange promotes an approved pending plan.
type PlanChange struct {
	PendingPlan string
	ClearTrial  bool
}

func (PlanChange) Kind() string { return "plan_change" }
func (PlanChange) sealed()      {}

func (f PlanChange) Apply(stored *Subscription, _ string, now time.Time) (*Subscription, bool) {
	if stored == nil || stored.PendingPlan == "" || stored.PendingPlan != f.PendingPlan {
		return nil, false
	}
	sub := stored.Clone()
	sub.Plan = f.PendingPlan
	sub.PendingPlan = ""
	sub.PendingActivation = false
	sub.Status = StatusActive
	sub.CancelledAt = nil
	if f.ClearTrial {
		sub.TrialEndsAt = nil
	}
	sub.UpdatedAt = now
	return sub, true
}

// Activation updates the plan of an activated row without touching the
// activation or trial timestamps.
type Activation struct {
	Plan string
}

func (Activation) Kind() string { return "activation" }
func (Activation) sealed()      {}

func (f Activation) Apply(stored *Subscription, _ string, now time.Time) (*Subscription, bool) {
	if stored == nil || !stored.IsActivated() || stored.PendingPlan != "" {
		return nil, false
	}
	sub := stored.Clone()
	sub.Plan = f.Plan
	sub.UpdatedAt = now
	return sub, true
}
