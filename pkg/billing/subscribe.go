package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

const maxFinalizeAttempts = 3

// RequestSubscribe creates a recurring charge for cmd.Plan and returns the
// approval URL. A first subscription writes nothing locally; the row only
// appears once the approval callback arrives. An existing row is marked with
// the pending plan, keeping its trial end untouched.
func (s *service) RequestSubscribe(ctx context.Context, cmd SubscribeCommand) (*Confirmation, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	plan, ok := s.catalog.Plan(cmd.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, cmd.Plan)
	}

	creds, err := s.credentials(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}

	sub, err := s.guard.Reconcile(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(sub, EventSubscribe); err != nil {
		return nil, err
	}

	now := s.clock()
	charge, err := s.gateway.CreateRecurringCharge(ctx, creds, RecurringChargeRequest{
		Name:      plan.Name,
		Price:     plan.Price,
		Interval:  plan.Interval,
		TrialDays: s.trialDaysFor(sub, cmd.EndTrial, now),
		ReturnURL: s.returnURL(s.cfg.SubscriptionReturnURI, url.Values{
			"shop":     {cmd.Shop},
			"plan":     {plan.Key},
			"returnTo": {cmd.ReturnTo},
		}),
		Test: s.cfg.TestCharges,
	})
	if err != nil {
		return nil, err
	}

	if sub != nil {
		_, err = s.subs.Update(ctx, cmd.Shop, Update{
			PendingPlan:       ptr(plan.Key),
			SubscriptionID:    ptr(charge.ID),
			PendingActivation: ptr(true),
		})
		if err != nil {
			return nil, fmt.Errorf("billing: mark pending plan: %w", err)
		}
	}
	s.invalidate(ctx, cmd.Shop)

	metrics.IncSubscriptionTransition("subscribe_requested")
	s.logger.InfoContext(ctx, "subscription requested",
		logger.Shop(cmd.Shop),
		logger.Plan(plan.Key),
		logger.ChargeID(charge.ID),
		logger.Event(string(StateOf(sub))),
	)

	return &Confirmation{URL: charge.ConfirmationURL, SubscriptionID: charge.ID}, nil
}

// trialDaysFor computes the trial length sent with a new recurring charge.
func (s *service) trialDaysFor(sub *Subscription, endTrial bool, now time.Time) int {
	switch {
	case endTrial:
		return 0
	case sub != nil && sub.InTrialAt(now):
		return sub.TrialDaysRemainingAt(now)
	default:
		return s.catalog.TrialDays()
	}
}

// HandleApprovalCallback finalizes an approved subscription. It is idempotent:
// a repeated callback leaves the row unchanged and grants no extra tokens.
func (s *service) HandleApprovalCallback(ctx context.Context, cb ApprovalCallback) (*Subscription, error) {
	if err := Validate(cb); err != nil {
		return nil, err
	}
	if cb.Plan != "" {
		if _, ok := s.catalog.Plan(cb.Plan); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, cb.Plan)
		}
	}

	var (
		sub *Subscription
		err error
	)
	for range maxFinalizeAttempts {
		sub, err = s.finalize(ctx, cb)
		if !errors.Is(err, ErrStaleWrite) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	if plan, ok := s.catalog.Plan(sub.Plan); ok && plan.IncludedTokens > 0 {
		if _, err := s.ledger.SetIncludedTokens(ctx, cb.Shop, plan.IncludedTokens, plan.Key, sub.SubscriptionID); err != nil {
			return nil, fmt.Errorf("billing: grant included tokens: %w", err)
		}
	}
	s.invalidate(ctx, cb.Shop)

	return sub, nil
}

// finalize picks the finalization variant for the stored row and applies it.
func (s *service) finalize(ctx context.Context, cb ApprovalCallback) (*Subscription, error) {
	stored, err := s.subs.Get(ctx, cb.Shop)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("billing: load subscription: %w", err)
	}
	if errors.Is(err, ErrSubscriptionNotFound) {
		stored = nil
	}

	now := s.clock()
	var f Finalization

	switch {
	case stored != nil && stored.PendingPlan != "" && cb.ChargeID != "" && cb.ChargeID != stored.SubscriptionID:
		s.logger.InfoContext(ctx, "ignoring approval for superseded charge",
			logger.Shop(cb.Shop),
			logger.ChargeID(cb.ChargeID),
			logger.Plan(stored.PendingPlan),
		)
		return stored, nil

	case stored != nil && stored.PendingPlan != "":
		f = PlanChange{
			PendingPlan: stored.PendingPlan,
			ClearTrial:  stored.TrialEndsAt != nil && !stored.InTrialAt(now),
		}

	case stored != nil && stored.IsActivated():
		if cb.Plan == "" || cb.Plan == stored.Plan {
			return stored, nil
		}
		f = Activation{Plan: cb.Plan}

	case cb.Plan == "":
		if stored == nil {
			return nil, fmt.Errorf("%w: callback carries no plan", ErrInvalidPlan)
		}
		return stored, nil

	default:
		if stored != nil && stored.Plan == cb.Plan && !stored.IsCancelled() &&
			(cb.ChargeID == "" || cb.ChargeID == stored.SubscriptionID) {
			return stored, nil
		}
		first := FirstInstall{Plan: cb.Plan, SubscriptionID: cb.ChargeID}
		if days := s.catalog.TrialDays(); days > 0 {
			first.TrialEndsAt = ptr(now.AddDate(0, 0, days))
		}
		f = first
	}

	sub, err := s.subs.Finalize(ctx, cb.Shop, f)
	if err != nil {
		return nil, err
	}

	metrics.IncSubscriptionTransition(f.Kind())
	s.logger.InfoContext(ctx, "subscription finalized",
		logger.Shop(cb.Shop),
		logger.Plan(sub.Plan),
		logger.Event(f.Kind()),
		logger.ChargeID(sub.SubscriptionID),
	)
	return sub, nil
}
