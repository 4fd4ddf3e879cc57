package tokens

import (
	"context"
	"time"
)

// Store persists token balances. Implementations must apply a Mutation
// atomically and only when the stored version equals Mutation.ExpectVersion.
type Store interface {
	// Get returns ErrBalanceNotFound when the shop has no balance document.
	Get(ctx context.Context, shop string) (*Balance, error)

	// Create inserts a new balance. Returns ErrBalanceExists if one is already stored.
	Create(ctx context.Context, b *Balance) error

	// Apply writes m. Returns ErrConflict when the version no longer matches.
	Apply(ctx context.Context, shop string, m Mutation) error

	Delete(ctx context.Context, shop string) error
}

// Mutation is a single compare-and-swap write. The scalar fields carry the
// complete new values; at most one history change is applied per mutation.
type Mutation struct {
	ExpectVersion int64

	Balance           int64
	TotalPurchased    int64
	TotalUsed         int64
	IncludedRemaining int64
	IncludedGrant     *Grant
	LastPurchase      *time.Time
	LastRefreshID     string

	AppendPurchase   *Purchase
	CompletePurchase string // charge id of a pending purchase to mark completed
	AppendUsage      *Usage

	At time.Time
}

// Kind names the mutation for logs and metrics.
func (m Mutation) Kind() string {
	switch {
	case m.AppendUsage != nil:
		return string(m.AppendUsage.Kind)
	case m.CompletePurchase != "":
		return "purchase_completed"
	case m.AppendPurchase != nil && m.AppendPurchase.Status == PurchaseCompleted:
		return "purchase_completed"
	case m.AppendPurchase != nil:
		return "purchase_pending"
	default:
		return "update"
	}
}

// ApplyTo applies m to b in memory, the same way a store applies it.
func (m Mutation) ApplyTo(b *Balance) {
	b.Balance = m.Balance
	b.TotalPurchased = m.TotalPurchased
	b.TotalUsed = m.TotalUsed
	b.IncludedRemaining = m.IncludedRemaining
	b.IncludedGrant = m.IncludedGrant
	b.LastPurchase = m.LastPurchase
	b.LastRefreshID = m.LastRefreshID
	b.Version = m.ExpectVersion + 1
	b.UpdatedAt = m.At

	if m.AppendPurchase != nil {
		b.Purchases = append(b.Purchases, *m.AppendPurchase)
	}
	if m.CompletePurchase != "" {
		for i := range b.Purchases {
			p := &b.Purchases[i]
			if p.ChargeID == m.CompletePurchase && p.Status == PurchasePending {
				at := m.At
				p.Status = PurchaseCompleted
				p.CompletedAt = &at
				break
			}
		}
	}
	if m.AppendUsage != nil {
		b.Usage = append(b.Usage, *m.AppendUsage)
	}
}

// mutation starts a write from the current state of b.
func (b *Balance) mutation(now time.Time) *Mutation {
	return &Mutation{
		ExpectVersion:     b.Version,
		Balance:           b.Balance,
		TotalPurchased:    b.TotalPurchased,
		TotalUsed:         b.TotalUsed,
		IncludedRemaining: b.IncludedRemaining,
		IncludedGrant:     b.IncludedGrant,
		LastPurchase:      b.LastPurchase,
		LastRefreshID:     b.LastRefreshID,
		At:                now,
	}
}
