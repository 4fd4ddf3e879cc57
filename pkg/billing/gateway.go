package billing

import (
	"context"
	"time"
)

// Charge statuses reported by the gateway.
const (
	ChargeStatusActive   = "ACTIVE"
	ChargeStatusPending  = "PENDING"
	ChargeStatusDeclined = "DECLINED"
)

// Credentials authenticate gateway calls on behalf of a shop.
type Credentials struct {
	Shop        string
	AccessToken string
}

// Gateway is the external billing provider. Every method may fail with an
// error matching ErrGatewayUnreachable or ErrGatewayRejected.
type Gateway interface {
	CreateRecurringCharge(ctx context.Context, creds Credentials, req RecurringChargeRequest) (*Charge, error)
	CreateOneTimeCharge(ctx context.Context, creds Credentials, req OneTimeChargeRequest) (*Charge, error)

	// GetActiveSubscription returns the subscription the provider currently
	// considers approved, or nil when there is none.
	GetActiveSubscription(ctx context.Context, creds Credentials) (*ActiveSubscription, error)

	CancelSubscription(ctx context.Context, creds Credentials, subscriptionID string) error

	// GetOneTimeCharge returns nil when the charge does not exist.
	GetOneTimeCharge(ctx context.Context, creds Credentials, chargeID string) (*OneTimeCharge, error)
}

// RecurringChargeRequest describes a subscription to create.
type RecurringChargeRequest struct {
	Name      string
	Price     Money
	Interval  Interval
	TrialDays int
	ReturnURL string
	Test      bool
}

// OneTimeChargeRequest describes a one-time purchase to create.
type OneTimeChargeRequest struct {
	Name      string
	Price     Money
	ReturnURL string
	Test      bool
}

// Charge is the result of creating a charge: the merchant must visit
// ConfirmationURL to approve it.
type Charge struct {
	ID              string
	ConfirmationURL string
	Status          string
}

// ActiveSubscription is the gateway's view of the shop's approved subscription.
type ActiveSubscription struct {
	ID               string
	Name             string
	Status           string
	TrialDays        int
	Test             bool
	CurrentPeriodEnd *time.Time
	CreatedAt        time.Time
}

// OneTimeCharge is the gateway's view of a one-time purchase.
type OneTimeCharge struct {
	ID     string
	Name   string
	Status string
	Price  Money
	Test   bool
}
