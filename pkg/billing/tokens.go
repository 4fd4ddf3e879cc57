package billing

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

// AccessReason explains the outcome of a feature access check.
type AccessReason string

const (
	ReasonAllowed            AccessReason = "allowed"
	ReasonNoSubscription     AccessReason = "no_subscription"
	ReasonCancelled          AccessReason = "subscription_cancelled"
	ReasonFeatureNotInPlan   AccessReason = "feature_not_in_plan"
	ReasonTrialRestricted    AccessReason = "trial_restricted"
	ReasonInsufficientTokens AccessReason = "insufficient_tokens"
)

// Access is the result of CheckAccess.
type Access struct {
	Allowed bool         `json:"allowed"`
	Reason  AccessReason `json:"reason"`
	Balance int64        `json:"balance"`
}

// validateUSD checks a purchase amount against the configured bounds.
// Amounts may carry at most two decimal places.
func (s *service) validateUSD(usd decimal.Decimal) error {
	switch {
	case !usd.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	case !usd.Equal(usd.Truncate(2)):
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	case usd.LessThan(s.cfg.MinPurchaseUSD):
		return fmt.Errorf("%w: minimum is %s USD", ErrInvalidAmount, s.cfg.MinPurchaseUSD.StringFixed(2))
	case s.cfg.MaxPurchaseUSD.IsPositive() && usd.GreaterThan(s.cfg.MaxPurchaseUSD):
		return fmt.Errorf("%w: maximum is %s USD", ErrInvalidAmount, s.cfg.MaxPurchaseUSD.StringFixed(2))
	}
	return nil
}

// tokensFor converts a USD amount into tokens.
func (s *service) tokensFor(usd decimal.Decimal) int64 {
	return usd.Mul(decimal.NewFromInt(s.cfg.TokensPerUSD)).IntPart()
}

// PurchaseTokens creates a one-time charge and records a pending purchase.
func (s *service) PurchaseTokens(ctx context.Context, cmd PurchaseTokensCommand) (*Confirmation, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	if err := s.validateUSD(cmd.USDAmount); err != nil {
		return nil, err
	}

	creds, err := s.credentials(ctx, cmd.Shop)
	if err != nil {
		return nil, err
	}

	count := s.tokensFor(cmd.USDAmount)
	charge, err := s.gateway.CreateOneTimeCharge(ctx, creds, OneTimeChargeRequest{
		Name:  fmt.Sprintf("%d SEO tokens", count),
		Price: USD(cmd.USDAmount),
		ReturnURL: s.returnURL(s.cfg.TokensReturnURI, url.Values{
			"shop":     {cmd.Shop},
			"usd":      {cmd.USDAmount.StringFixed(2)},
			"returnTo": {cmd.ReturnTo},
		}),
		Test: s.cfg.TestCharges,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.ledger.CreditPurchase(ctx, cmd.Shop, cmd.USDAmount, count, charge.ID); err != nil {
		return nil, fmt.Errorf("billing: record pending purchase: %w", err)
	}

	s.logger.InfoContext(ctx, "token purchase requested",
		logger.Shop(cmd.Shop),
		logger.ChargeID(charge.ID),
		logger.Tokens(count),
	)
	return &Confirmation{URL: charge.ConfirmationURL, ChargeID: charge.ID, Tokens: count}, nil
}

// ConfirmTokenPurchase credits tokens once the gateway reports the one-time
// charge as approved for the expected price. Confirming twice is a no-op.
func (s *service) ConfirmTokenPurchase(ctx context.Context, cb TokenPurchaseCallback) (*tokens.Balance, error) {
	if err := Validate(cb); err != nil {
		return nil, err
	}
	if err := s.validateUSD(cb.USDAmount); err != nil {
		return nil, err
	}

	creds, err := s.credentials(ctx, cb.Shop)
	if err != nil {
		return nil, err
	}

	charge, err := s.gateway.GetOneTimeCharge(ctx, creds, cb.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge == nil || charge.Status != ChargeStatusActive {
		return nil, ErrChargeNotApproved
	}
	if !charge.Price.Equal(USD(cb.USDAmount)) {
		return nil, fmt.Errorf("%w: charge price %s does not match %s", ErrInvalidAmount, charge.Price, USD(cb.USDAmount))
	}

	count := s.tokensFor(cb.USDAmount)
	bal, err := s.ledger.ConfirmPurchase(ctx, cb.Shop, cb.USDAmount, count, cb.ChargeID)
	if err != nil {
		return nil, fmt.Errorf("billing: confirm purchase: %w", err)
	}

	s.logger.InfoContext(ctx, "token purchase confirmed",
		logger.Shop(cb.Shop),
		logger.ChargeID(cb.ChargeID),
		logger.Tokens(count),
	)
	return bal, nil
}

// RecurringBillingSucceeded refreshes the monthly token allowance when the
// signal matches the shop's current subscription. Signals for other
// subscriptions are ignored.
func (s *service) RecurringBillingSucceeded(ctx context.Context, sig BillingSuccessSignal) error {
	if err := Validate(sig); err != nil {
		return err
	}

	sub, err := s.subs.Get(ctx, sig.Shop)
	if err != nil {
		return fmt.Errorf("billing: load subscription: %w", err)
	}
	if sub.IsCancelled() || sub.SubscriptionID != sig.SubscriptionID {
		s.logger.InfoContext(ctx, "ignoring billing success for non-current subscription",
			logger.Shop(sig.Shop),
			logger.ChargeID(sig.SubscriptionID),
		)
		return nil
	}

	bal, err := s.ledger.MonthlyRefresh(ctx, sig.Shop, sub.Plan, sig.EventID)
	if err != nil {
		return fmt.Errorf("billing: monthly refresh: %w", err)
	}

	s.logger.InfoContext(ctx, "monthly tokens refreshed",
		logger.Shop(sig.Shop),
		logger.Plan(sub.Plan),
		logger.Tokens(bal.Balance),
	)
	return nil
}

// CheckAccess decides whether the shop may use a feature right now.
func (s *service) CheckAccess(ctx context.Context, check AccessCheck) (*Access, error) {
	if err := Validate(check); err != nil {
		return nil, err
	}

	info, err := s.BillingInfo(ctx, check.Shop)
	if err != nil {
		return nil, err
	}

	deny := func(r AccessReason) (*Access, error) {
		return &Access{Reason: r, Balance: info.Tokens.Balance}, nil
	}

	switch {
	case info.State == StateNone:
		return deny(ReasonNoSubscription)
	case info.Status == StatusCancelled:
		return deny(ReasonCancelled)
	}

	if info.Plan == nil {
		return deny(ReasonFeatureNotInPlan)
	}
	plan, ok := s.catalog.Plan(info.Plan.Key)
	if !ok || !plan.HasFeature(check.Feature) {
		return deny(ReasonFeatureNotInPlan)
	}
	if s.catalog.ConsumesTokens(check.Feature) && info.InTrialAt(s.clock()) && !info.Activated() {
		return deny(ReasonTrialRestricted)
	}

	if check.Tokens > 0 {
		ok, err := s.ledger.HasBalance(ctx, check.Shop, check.Tokens)
		if err != nil {
			return nil, err
		}
		if !ok {
			return deny(ReasonInsufficientTokens)
		}
	}

	return &Access{Allowed: true, Reason: ReasonAllowed, Balance: info.Tokens.Balance}, nil
}

// ConsumeTokens checks access and debits the ledger. An insufficient balance is
// reported by the ledger with the exact shortfall.
func (s *service) ConsumeTokens(ctx context.Context, cmd ConsumeCommand) (*tokens.Balance, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}

	access, err := s.CheckAccess(ctx, AccessCheck{Shop: cmd.Shop, Feature: cmd.Feature})
	if err != nil {
		return nil, err
	}
	if !access.Allowed {
		return nil, &AccessDeniedError{Feature: cmd.Feature, Reason: access.Reason}
	}

	bal, err := s.ledger.Debit(ctx, cmd.Shop, cmd.Amount, cmd.Feature, cmd.Metadata)
	if err != nil {
		if errors.Is(err, tokens.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("billing: debit tokens: %w", err)
	}
	return bal, nil
}

// BillingInfo returns the shop's billing view, reconciling on a cache miss.
func (s *service) BillingInfo(ctx context.Context, shop string) (*Info, error) {
	if shop == "" {
		return nil, &CommandError{Fields: map[string][]string{"shop": {"required"}}}
	}

	if info, err := s.cache.Get(ctx, shop); err == nil {
		return info, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.WarnContext(ctx, "billing view cache read failed", logger.Shop(shop), logger.Error(err))
	}

	sub, err := s.guard.Reconcile(ctx, shop)
	if err != nil {
		return nil, err
	}
	bal, err := s.ledger.GetOrCreate(ctx, shop)
	if err != nil {
		return nil, fmt.Errorf("billing: load token balance: %w", err)
	}

	info := buildInfo(shop, sub, bal, s.catalog)
	if err := s.cache.Set(ctx, shop, info); err != nil {
		s.logger.WarnContext(ctx, "billing view cache write failed", logger.Shop(shop), logger.Error(err))
	}
	return info, nil
}

// Uninstall removes every billing record of the shop.
func (s *service) Uninstall(ctx context.Context, sig UninstallSignal) error {
	if err := Validate(sig); err != nil {
		return err
	}

	var errs []error
	if err := s.subs.Delete(ctx, sig.Shop); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		errs = append(errs, err)
	}
	if err := s.ledger.Delete(ctx, sig.Shop); err != nil {
		errs = append(errs, err)
	}
	if err := s.creds.Delete(ctx, sig.Shop); err != nil && !errors.Is(err, ErrShopNotFound) {
		errs = append(errs, err)
	}
	s.invalidate(ctx, sig.Shop)

	if len(errs) > 0 {
		return fmt.Errorf("billing: uninstall: %w", errors.Join(errs...))
	}
	s.logger.InfoContext(ctx, "shop billing data removed", logger.Shop(sig.Shop))
	return nil
}
