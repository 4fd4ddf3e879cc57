package tokens

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a usage ledger entry.
type EntryKind string

const (
	KindDebit          EntryKind = "debit"
	KindIncludedSet    EntryKind = "included_set"
	KindIncludedAdd    EntryKind = "included_add"
	KindMonthlyRefresh EntryKind = "monthly_refresh"
)

// PurchaseStatus is the lifecycle of a token purchase record.
type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
)

// Purchase is an entry of the append-only purchase history.
// Only completed purchases contribute to the balance.
type Purchase struct {
	ID          string          `json:"id"`
	USDAmount   decimal.Decimal `json:"usd_amount"`
	Tokens      int64           `json:"tokens"`
	ChargeID    string          `json:"charge_id,omitempty"`
	Status      PurchaseStatus  `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Usage is an entry of the append-only usage history.
// Delta is signed: debits are negative, grants and refresh adjustments may be either.
type Usage struct {
	ID       string         `json:"id"`
	Kind     EntryKind      `json:"kind"`
	Feature  string         `json:"feature,omitempty"`
	Delta    int64          `json:"delta"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

// Grant tags the included-token portion of a balance with the plan and
// subscription it came from, so repeated plan-change callbacks do not stack.
type Grant struct {
	Plan           string    `json:"plan"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Tokens         int64     `json:"tokens"`
	GrantedAt      time.Time `json:"granted_at"`
}

// Balance is the per-shop token document.
type Balance struct {
	Shop              string     `json:"shop"`
	Balance           int64      `json:"balance"`
	TotalPurchased    int64      `json:"total_purchased"`
	TotalUsed         int64      `json:"total_used"`
	IncludedRemaining int64      `json:"included_remaining"`
	IncludedGrant     *Grant     `json:"included_grant,omitempty"`
	LastPurchase      *time.Time `json:"last_purchase,omitempty"`
	LastRefreshID     string     `json:"last_refresh_id,omitempty"`
	Purchases         []Purchase `json:"purchases"`
	Usage             []Usage    `json:"usage"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// PurchasedRemaining returns the part of the balance backed by purchased tokens.
func (b *Balance) PurchasedRemaining() int64 {
	return b.Balance - b.IncludedRemaining
}

// FindPurchase returns the purchase recorded for chargeID, if any.
func (b *Balance) FindPurchase(chargeID string) (Purchase, bool) {
	if chargeID == "" {
		return Purchase{}, false
	}
	for _, p := range b.Purchases {
		if p.ChargeID == chargeID {
			return p, true
		}
	}
	return Purchase{}, false
}

// Replay recomputes the balance from the purchase and usage histories.
func Replay(b Balance) int64 {
	var total int64
	for _, p := range b.Purchases {
		if p.Status == PurchaseCompleted {
			total += p.Tokens
		}
	}
	for _, u := range b.Usage {
		total += u.Delta
	}
	return total
}

func newBalance(shop string, now time.Time) *Balance {
	return &Balance{
		Shop:      shop,
		Purchases: []Purchase{},
		Usage:     []Usage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewBalance returns a zeroed balance document for shop.
func NewBalance(shop string, now time.Time) *Balance {
	return newBalance(shop, now.UTC())
}

// Clone returns a deep copy of b.
func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	c := *b
	if b.IncludedGrant != nil {
		g := *b.IncludedGrant
		c.IncludedGrant = &g
	}
	if b.LastPurchase != nil {
		t := *b.LastPurchase
		c.LastPurchase = &t
	}
	c.Purchases = make([]Purchase, len(b.Purchases))
	for i, p := range b.Purchases {
		if p.CompletedAt != nil {
			t := *p.CompletedAt
			p.CompletedAt = &t
		}
		c.Purchases[i] = p
	}
	c.Usage = make([]Usage, len(b.Usage))
	for i, u := range b.Usage {
		if u.Metadata != nil {
			md := make(map[string]any, len(u.Metadata))
			for k, v := range u.Metadata {
				md[k] = v
			}
			u.Metadata = md
		}
		c.Usage[i] = u
	}
	return &c
}
