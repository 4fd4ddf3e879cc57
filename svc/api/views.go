package api

import (
	"time"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

type subscriptionView struct {
	Shop              string         `json:"shop"`
	Plan              string         `json:"plan"`
	Status            billing.Status `json:"status"`
	SubscriptionID    string         `json:"subscription_id,omitempty"`
	PendingPlan       string         `json:"pending_plan,omitempty"`
	PendingActivation bool           `json:"pending_activation"`
	ActivatedAt       *time.Time     `json:"activated_at,omitempty"`
	TrialEndsAt       *time.Time     `json:"trial_ends_at,omitempty"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty"`
}

func toSubscriptionView(s *billing.Subscription) subscriptionView {
	return subscriptionView{
		Shop:              s.Shop,
		Plan:              s.Plan,
		Status:            s.Status,
		SubscriptionID:    s.SubscriptionID,
		PendingPlan:       s.PendingPlan,
		PendingActivation: s.PendingActivation,
		ActivatedAt:       s.ActivatedAt,
		TrialEndsAt:       s.TrialEndsAt,
		CancelledAt:       s.CancelledAt,
	}
}

type balanceView struct {
	Shop              string `json:"shop"`
	Balance           int64  `json:"balance"`
	TotalPurchased    int64  `json:"total_purchased"`
	TotalUsed         int64  `json:"total_used"`
	IncludedRemaining int64  `json:"included_remaining"`
}

func toBalanceView(b *tokens.Balance) balanceView {
	return balanceView{
		Shop:              b.Shop,
		Balance:           b.Balance,
		TotalPurchased:    b.TotalPurchased,
		TotalUsed:         b.TotalUsed,
		IncludedRemaining: b.IncludedRemaining,
	}
}
