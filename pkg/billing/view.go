package billing

import (
	"context"
	"time"

	"github.com/rankfoundry/shopseo/pkg/tokens"
)

// ViewCache is the read-through cache of per-shop billing views.
// Invalidate must be called after every state-mutating operation.
type ViewCache interface {
	// Get returns ErrCacheMiss when nothing is cached for shop.
	Get(ctx context.Context, shop string) (*Info, error)
	Set(ctx context.Context, shop string, info *Info) error
	Invalidate(ctx context.Context, shop string) error
}

// PlanInfo is the public projection of a catalog plan.
type PlanInfo struct {
	Key            string           `json:"key"`
	Name           string           `json:"name"`
	Price          string           `json:"price"`
	Currency       string           `json:"currency"`
	Interval       Interval         `json:"interval"`
	IncludedTokens int64            `json:"included_tokens"`
	Limits         map[string]int64 `json:"limits,omitempty"`
	Features       []string         `json:"features,omitempty"`
}

// TokenSummary is the balance part of the billing view.
type TokenSummary struct {
	Balance           int64      `json:"balance"`
	TotalPurchased    int64      `json:"total_purchased"`
	TotalUsed         int64      `json:"total_used"`
	IncludedRemaining int64      `json:"included_remaining"`
	LastPurchase      *time.Time `json:"last_purchase,omitempty"`
}

// Info is the billing view rendered by the embedded app.
type Info struct {
	Shop              string       `json:"shop"`
	State             State        `json:"state"`
	Plan              *PlanInfo    `json:"plan,omitempty"`
	Status            Status       `json:"status,omitempty"`
	PendingPlan       string       `json:"pending_plan,omitempty"`
	PendingActivation bool         `json:"pending_activation"`
	ActivatedAt       *time.Time   `json:"activated_at,omitempty"`
	TrialEndsAt       *time.Time   `json:"trial_ends_at,omitempty"`
	CancelledAt       *time.Time   `json:"cancelled_at,omitempty"`
	Tokens            TokenSummary `json:"tokens"`
	Plans             []PlanInfo   `json:"plans"`
}

// InTrialAt reports whether the trial is running at now.
func (i *Info) InTrialAt(now time.Time) bool {
	return i.TrialEndsAt != nil && now.Before(*i.TrialEndsAt)
}

func (i *Info) Activated() bool { return i.ActivatedAt != nil }

// Unsettled reports whether the view carries a pending plan or an activation
// that the guard may still clear once the gateway is consulted.
func (i *Info) Unsettled() bool { return i.PendingPlan != "" || i.ActivatedAt != nil }

func planInfo(p Plan) PlanInfo {
	return PlanInfo{
		Key:            p.Key,
		Name:           p.Name,
		Price:          p.Price.Amount.StringFixed(2),
		Currency:       p.Price.Currency,
		Interval:       p.Interval,
		IncludedTokens: p.IncludedTokens,
		Limits:         p.Limits,
		Features:       p.Features,
	}
}

func buildInfo(shop string, sub *Subscription, bal *tokens.Balance, catalog *Catalog) *Info {
	info := &Info{
		Shop:  shop,
		State: StateOf(sub),
		Plans: make([]PlanInfo, 0, len(catalog.order)),
	}
	for _, p := range catalog.Plans() {
		info.Plans = append(info.Plans, planInfo(p))
	}

	if sub != nil {
		if p, ok := catalog.Plan(sub.Plan); ok {
			pi := planInfo(p)
			info.Plan = &pi
		}
		info.Status = sub.Status
		info.PendingPlan = sub.PendingPlan
		info.PendingActivation = sub.PendingActivation
		info.ActivatedAt = sub.ActivatedAt
		info.TrialEndsAt = sub.TrialEndsAt
		info.CancelledAt = sub.CancelledAt
	}

	if bal != nil {
		info.Tokens = TokenSummary{
			Balance:           bal.Balance,
			TotalPurchased:    bal.TotalPurchased,
			TotalUsed:         bal.TotalUsed,
			IncludedRemaining: bal.IncludedRemaining,
			LastPurchase:      bal.LastPurchase,
		}
	}

	return info
}
