package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

const defaultMaxAttempts = 5

// Ledger is the token ledger service.
type Ledger struct {
	store       Store
	allowance   Allowance
	invalidator Invalidator
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
	newID       func() string
}

// NewLedger creates a Ledger. Panics if store or allowance is nil.
func NewLedger(store Store, allowance Allowance, opts ...Option) *Ledger {
	if store == nil {
		panic("tokens: Store is required")
	}
	if allowance == nil {
		panic("tokens: Allowance is required")
	}

	l := &Ledger{
		store:       store,
		allowance:   allowance,
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("tokens"))

	return l
}

// GetOrCreate returns the shop's balance, creating a zeroed one on first access.
func (l *Ledger) GetOrCreate(ctx context.Context, shop string) (*Balance, error) {
	if shop == "" {
		return nil, ErrInvalidShop
	}

	b, err := l.store.Get(ctx, shop)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, fmt.Errorf("tokens: get balance: %w", err)
	}

	b = NewBalance(shop, l.now())
	if err := l.store.Create(ctx, b); err != nil {
		if !errors.Is(err, ErrBalanceExists) {
			return nil, fmt.Errorf("tokens: create balance: %w", err)
		}
		// Lost the race with a concurrent first access.
		if b, err = l.store.Get(ctx, shop); err != nil {
			return nil, fmt.Errorf("tokens: get balance: %w", err)
		}
	}

	return b, nil
}

// HasBalance reports whether the shop holds at least amount tokens.
// Shops without a balance document hold zero tokens.
func (l *Ledger) HasBalance(ctx context.Context, shop string, amount int64) (bool, error) {
	b, err := l.store.Get(ctx, shop)
	if errors.Is(err, ErrBalanceNotFound) {
		return amount <= 0, nil
	}
	if err != nil {
		return false, fmt.Errorf("tokens: get balance: %w", err)
	}
	return b.Balance >= amount, nil
}

// Debit consumes amount tokens for feature. Included tokens are spent first.
// Returns *InsufficientBalanceError if amount exceeds the current balance;
// the stored balance is left untouched in that case.
func (l *Ledger) Debit(ctx context.Context, shop string, amount int64, feature string, metadata map[string]any) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		if amount > b.Balance {
			return nil, &InsufficientBalanceError{
				Requested: amount,
				Available: b.Balance,
				Shortfall: amount - b.Balance,
			}
		}

		m := b.mutation(now)
		m.Balance -= amount
		m.TotalUsed += amount
		m.IncludedRemaining -= min(amount, b.IncludedRemaining)
		m.AppendUsage = &Usage{
			ID:       l.newID(),
			Kind:     KindDebit,
			Feature:  feature,
			Delta:    -amount,
			Metadata: metadata,
			At:       now,
		}
		return m, nil
	})
}

// CreditPurchase records a pending purchase for an issued one-time charge.
// The balance does not change until ConfirmPurchase. Recording the same charge twice is a no-op.
func (l *Ledger) CreditPurchase(ctx context.Context, shop string, usd decimal.Decimal, tokens int64, chargeID string) (*Balance, error) {
	if tokens <= 0 || !usd.IsPositive() || chargeID == "" {
		return nil, ErrInvalidAmount
	}

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		if _, ok := b.FindPurchase(chargeID); ok {
			return nil, nil
		}

		m := b.mutation(now)
		m.AppendPurchase = &Purchase{
			ID:        l.newID(),
			USDAmount: usd,
			Tokens:    tokens,
			ChargeID:  chargeID,
			Status:    PurchasePending,
			CreatedAt: now,
		}
		return m, nil
	})
}

// ConfirmPurchase credits a purchase approved by the merchant.
// A pending record for chargeID is completed and its token count credited;
// without one a completed record is appended. Confirming twice is a no-op.
func (l *Ledger) ConfirmPurchase(ctx context.Context, shop string, usd decimal.Decimal, tokens int64, chargeID string) (*Balance, error) {
	if tokens <= 0 || !usd.IsPositive() {
		return nil, ErrInvalidAmount
	}

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		credit := tokens
		m := b.mutation(now)

		p, ok := b.FindPurchase(chargeID)
		switch {
		case ok && p.Status == PurchaseCompleted:
			return nil, nil
		case ok:
			credit = p.Tokens
			m.CompletePurchase = chargeID
		default:
			m.AppendPurchase = &Purchase{
				ID:          l.newID(),
				USDAmount:   usd,
				Tokens:      tokens,
				ChargeID:    chargeID,
				Status:      PurchaseCompleted,
				CreatedAt:   now,
				CompletedAt: &now,
			}
		}

		m.Balance += credit
		m.TotalPurchased += credit
		m.LastPurchase = &now
		return m, nil
	})
}

// SetIncludedTokens replaces the included portion of the balance with tokens,
// keeping purchased tokens intact. A grant already tagged with the same plan and
// subscription id is not applied again.
func (l *Ledger) SetIncludedTokens(ctx context.Context, shop string, tokens int64, plan, subscriptionID string) (*Balance, error) {
	if tokens < 0 {
		return nil, ErrInvalidAmount
	}

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		if g := b.IncludedGrant; g != nil && g.Plan == plan && g.SubscriptionID == subscriptionID {
			return nil, nil
		}

		m := b.mutation(now)
		m.Balance = tokens + b.PurchasedRemaining()
		m.IncludedRemaining = tokens
		m.IncludedGrant = &Grant{
			Plan:           plan,
			SubscriptionID: subscriptionID,
			Tokens:         tokens,
			GrantedAt:      now,
		}
		m.AppendUsage = &Usage{
			ID:    l.newID(),
			Kind:  KindIncludedSet,
			Delta: m.Balance - b.Balance,
			Metadata: map[string]any{
				"plan":             plan,
				"subscriptionId":   subscriptionID,
				"previousIncluded": b.IncludedRemaining,
			},
			At: now,
		}
		return m, nil
	})
}

// AddIncludedTokens stacks tokens on top of the current included portion.
func (l *Ledger) AddIncludedTokens(ctx context.Context, shop string, tokens int64, plan string) (*Balance, error) {
	if tokens < 0 {
		return nil, ErrInvalidAmount
	}

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		if tokens == 0 {
			return nil, nil
		}

		m := b.mutation(now)
		m.Balance += tokens
		m.IncludedRemaining += tokens
		grant := Grant{Plan: plan, Tokens: tokens, GrantedAt: now}
		if b.IncludedGrant != nil {
			grant = *b.IncludedGrant
			grant.Tokens += tokens
		}
		m.IncludedGrant = &grant
		m.AppendUsage = &Usage{
			ID:       l.newID(),
			Kind:     KindIncludedAdd,
			Delta:    tokens,
			Metadata: map[string]any{"plan": plan},
			At:       now,
		}
		return m, nil
	})
}

// MonthlyRefresh resets the balance to the plan's included tokens plus every
// token ever purchased and zeroes TotalUsed. A non-empty eventID that matches
// the last applied refresh makes the call a no-op.
func (l *Ledger) MonthlyRefresh(ctx context.Context, shop, plan, eventID string) (*Balance, error) {
	included := l.allowance.IncludedTokens(plan)

	return l.mutate(ctx, shop, func(b *Balance, now time.Time) (*Mutation, error) {
		if eventID != "" && b.LastRefreshID == eventID {
			return nil, nil
		}

		m := b.mutation(now)
		m.Balance = included + b.TotalPurchased
		m.TotalUsed = 0
		m.IncludedRemaining = included
		m.LastRefreshID = eventID

		grant := Grant{Plan: plan, Tokens: included, GrantedAt: now}
		if g := b.IncludedGrant; g != nil && g.Plan == plan {
			grant.SubscriptionID = g.SubscriptionID
		}
		m.IncludedGrant = &grant

		m.AppendUsage = &Usage{
			ID:    l.newID(),
			Kind:  KindMonthlyRefresh,
			Delta: m.Balance - b.Balance,
			Metadata: map[string]any{
				"plan":              plan,
				"eventId":           eventID,
				"previousTotalUsed": b.TotalUsed,
				"previousBalance":   b.Balance,
			},
			At: now,
		}
		return m, nil
	})
}

// mutate runs fn against the freshest balance and commits the resulting
// mutation, retrying on version conflicts. A nil mutation means nothing to do.
func (l *Ledger) mutate(ctx context.Context, shop string, fn func(b *Balance, now time.Time) (*Mutation, error)) (*Balance, error) {
	for range l.maxAttempts {
		b, err := l.GetOrCreate(ctx, shop)
		if err != nil {
			return nil, err
		}

		m, err := fn(b, l.now().UTC())
		if err != nil {
			return nil, err
		}
		if m == nil {
			return b, nil
		}

		if err := l.store.Apply(ctx, shop, *m); err != nil {
			if errors.Is(err, ErrConflict) {
				metrics.IncLedgerConflict()
				continue
			}
			return nil, fmt.Errorf("tokens: apply %s: %w", m.Kind(), err)
		}

		delta := m.Balance - b.Balance
		m.ApplyTo(b)
		metrics.IncLedgerMutation(m.Kind(), delta)
		l.logger.DebugContext(ctx, "token ledger updated",
			logger.Shop(shop),
			logger.Event(m.Kind()),
			slog.Int64("delta", delta),
			slog.Int64("balance", b.Balance),
		)

		if l.invalidator != nil {
			if err := l.invalidator.Invalidate(ctx, shop); err != nil {
				l.logger.WarnContext(ctx, "failed to invalidate billing view", logger.Shop(shop), logger.Error(err))
			}
		}
		return b, nil
	}

	return nil, ErrConflict
}

// Delete removes the shop's balance document.
func (l *Ledger) Delete(ctx context.Context, shop string) error {
	if err := l.store.Delete(ctx, shop); err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return fmt.Errorf("tokens: delete balance: %w", err)
	}
	return nil
}
