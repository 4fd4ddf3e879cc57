package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

// Activate is the explicit merchant action that starts billing, ending the
// trial first when cmd.EndTrial is set.
//
// The activation timestamp (and the cleared trial) is persisted before the
// gateway is called so that a later callback reads consistent state. If the
// gateway call fails the activation mark is rolled back and the error is
// returned. An ended trial stays ended.
func (s *service) Activate(ctx context.Context, cmd ActivateCommand) (*Confirmation, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	creds, err := s.credentials(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}

	sub, err := s.guard.Reconcile(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}
	if !CanFire(sub, EventActivate) {
		return nil, ErrNoActiveSubscription
	}
	if sub.IsActivated() {
		return nil, ErrAlreadyActivated
	}
	plan, ok := s.catalog.Plan(sub.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, sub.Plan)
	}

	now := s.clock()
	trialDays := 0
	if !cmd.EndTrial {
		trialDays = sub.TrialDaysRemainingAt(now)
	}

	mark := Update{
		Expect:      Expect{Activated: ptr(false)},
		ActivatedAt: &now,
	}
	if cmd.EndTrial {
		mark.Unset = []Field{FieldTrialEndsAt}
	}
	if _, err := s.subs.Update(ctx, cmd.Shop, mark); err != nil {
		if errors.Is(err, ErrStaleWrite) {
			return nil, ErrAlreadyActivated
		}
		return nil, fmt.Errorf("billing: mark activation: %w", err)
	}
	s.invalidate(ctx, cmd.Shop)

	charge, gwErr := s.gateway.CreateRecurringCharge(ctx, creds, RecurringChargeRequest{
		Name:      plan.Name,
		Price:     plan.Price,
		Interval:  plan.Interval,
		TrialDays: trialDays,
		ReturnURL: s.returnURL(s.cfg.SubscriptionReturnURI, url.Values{
			"shop":     {cmd.Shop},
			"plan":     {plan.Key},
			"returnTo": {cmd.ReturnTo},
		}),
		Test: s.cfg.TestCharges,
	})
	if gwErr != nil {
		s.rollbackActivation(ctx, cmd.Shop, sub.SubscriptionID)
		s.logger.WarnContext(ctx, "charge creation failed, activation rolled back",
			logger.Shop(cmd.Shop), logger.Plan(plan.Key), logger.Error(gwErr))
		return nil, gwErr
	}

	if _, err := s.subs.Update(ctx, cmd.Shop, Update{
		Expect:         Expect{Activated: ptr(true)},
		SubscriptionID: ptr(charge.ID),
	}); err != nil {
		return nil, fmt.Errorf("billing: store activation charge: %w", err)
	}

	if plan.IncludedTokens > 0 {
		if _, err := s.ledger.AddIncludedTokens(ctx, cmd.Shop, plan.IncludedTokens, plan.Key); err != nil {
			return nil, fmt.Errorf("billing: grant included tokens: %w", err)
		}
	}
	s.invalidate(ctx, cmd.Shop)

	metrics.IncSubscriptionTransition("activation_requested")
	s.logger.InfoContext(ctx, "activation requested",
		logger.Shop(cmd.Shop),
		logger.Plan(plan.Key),
		logger.ChargeID(charge.ID),
	)
	return &Confirmation{URL: charge.ConfirmationURL, SubscriptionID: charge.ID}, nil
}

// rollbackActivation clears an activation mark whose charge was never created.
// The write only applies while the row still carries the mark and the
// subscription id it had before activation.
func (s *service) rollbackActivation(ctx context.Context, shop, subscriptionID string) {
	_, err := s.subs.Update(ctx, shop, Update{
		Expect: Expect{Activated: ptr(true), SubscriptionID: ptr(subscriptionID)},
		Unset:  []Field{FieldActivatedAt},
	})
	switch {
	case errors.Is(err, ErrStaleWrite):
		s.logger.InfoContext(ctx, "activation changed concurrently, rollback skipped", logger.Shop(shop))
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to roll back activation", logger.Shop(shop), logger.Error(err))
	default:
		metrics.IncSubscriptionTransition("activation_rolled_back")
	}
	s.invalidate(ctx, shop)
}

// Cancel cancels the shop's subscription at the gateway and marks the row
// cancelled. Granted tokens are left untouched.
func (s *service) Cancel(ctx context.Context, cmd CancelCommand) (*Subscription, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	sub, err := s.subs.Get(ctx, cmd.Shop)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("billing: load subscription: %w", err)
	}
	if sub.SubscriptionID == "" || !CanFire(sub, EventCancel) {
		return nil, ErrNoActiveSubscription
	}

	creds, err := s.credentials(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}
	if err := s.gateway.CancelSubscription(ctx, creds, sub.SubscriptionID); err != nil {
		return nil, err
	}

	now := s.clock()
	sub, err = s.subs.Update(ctx, cmd.Shop, Update{
		Expect:      Expect{SubscriptionID: ptr(sub.SubscriptionID)},
		Status:      ptr(StatusCancelled),
		CancelledAt: &now,
	})
	if err != nil {
		return nil, fmt.Errorf("billing: mark cancelled: %w", err)
	}
	s.invalidate(ctx, cmd.Shop)

	metrics.IncSubscriptionTransition("cancelled")
	s.logger.InfoContext(ctx, "subscription cancelled", logger.Shop(cmd.Shop), logger.ChargeID(sub.SubscriptionID))
	return sub, nil
}
