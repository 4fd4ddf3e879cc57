package shopify

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

const appSubscriptionCreate = `mutation appSubscriptionCreate($name: String!, $returnUrl: URL!, $trialDays: Int, $test: Boolean, $lineItems: [AppSubscriptionLineItemInput!]!) {
  appSubscriptionCreate(name: $name, returnUrl: $returnUrl, trialDays: $trialDays, test: $test, lineItems: $lineItems) {
    confirmationUrl
    appSubscription { id status }
    userErrors { field message }
  }
}`

const appPurchaseOneTimeCreate = `mutation appPurchaseOneTimeCreate($name: String!, $price: MoneyInput!, $returnUrl: URL!, $test: Boolean) {
  appPurchaseOneTimeCreate(name: $name, price: $price, returnUrl: $returnUrl, test: $test) {
    confirmationUrl
    appPurchaseOneTime { id status }
    userErrors { field message }
  }
}`

const activeSubscriptionsQuery = `query activeSubscriptions {
  currentAppInstallation {
    activeSubscriptions { id name status trialDays test currentPeriodEnd createdAt }
  }
}`

const appSubscriptionCancel = `mutation appSubscriptionCancel($id: ID!) {
  appSubscriptionCancel(id: $id) {
    appSubscription { id status }
    userErrors { field message }
  }
}`

const oneTimePurchaseQuery = `query oneTimePurchase($id: ID!) {
  node(id: $id) {
    ... on AppPurchaseOneTime { id name status test price { amount currencyCode } }
  }
}`

type moneyV2 struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

func moneyInput(m billing.Money) map[string]any {
	return map[string]any{"amount": m.Amount.String(), "currencyCode": m.Currency}
}

type chargeRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateRecurringCharge creates an app subscription the merchant must approve.
func (c *Client) CreateRecurringCharge(ctx context.Context, creds billing.Credentials, req billing.RecurringChargeRequest) (*billing.Charge, error) {
	if err := req.Price.Validate(); err != nil {
		return nil, err
	}
	vars := map[string]any{
		"name":      req.Name,
		"returnUrl": req.ReturnURL,
		"trialDays": req.TrialDays,
		"test":      req.Test,
		"lineItems": []map[string]any{{
			"plan": map[string]any{
				"appRecurringPricingDetails": map[string]any{
					"price":    moneyInput(req.Price),
					"interval": string(req.Interval),
				},
			},
		}},
	}

	var out struct {
		AppSubscriptionCreate struct {
			ConfirmationURL string              `json:"confirmationUrl"`
			AppSubscription *chargeRef          `json:"appSubscription"`
			UserErrors      []billing.UserError `json:"userErrors"`
		} `json:"appSubscriptionCreate"`
	}
	const op = "appSubscriptionCreate"
	if err := c.do(ctx, op, creds, appSubscriptionCreate, vars, &out); err != nil {
		return nil, err
	}
	res := out.AppSubscriptionCreate
	if err := rejected(op, res.UserErrors); err != nil {
		return nil, err
	}
	if res.AppSubscription == nil || res.ConfirmationURL == "" {
		return nil, fmt.Errorf("%w: %s: response without subscription", billing.ErrGatewayUnreachable, op)
	}
	return &billing.Charge{
		ID:              res.AppSubscription.ID,
		ConfirmationURL: res.ConfirmationURL,
		Status:          res.AppSubscription.Status,
	}, nil
}

// CreateOneTimeCharge creates a one-time purchase the merchant must approve.
func (c *Client) CreateOneTimeCharge(ctx context.Context, creds billing.Credentials, req billing.OneTimeChargeRequest) (*billing.Charge, error) {
	if err := req.Price.Validate(); err != nil {
		return nil, err
	}
	vars := map[string]any{
		"name":      req.Name,
		"price":     moneyInput(req.Price),
		"returnUrl": req.ReturnURL,
		"test":      req.Test,
	}

	var out struct {
		AppPurchaseOneTimeCreate struct {
			ConfirmationURL    string              `json:"confirmationUrl"`
			AppPurchaseOneTime *chargeRef          `json:"appPurchaseOneTime"`
			UserErrors         []billing.UserError `json:"userErrors"`
		} `json:"appPurchaseOneTimeCreate"`
	}
	const op = "appPurchaseOneTimeCreate"
	if err := c.do(ctx, op, creds, appPurchaseOneTimeCreate, vars, &out); err != nil {
		return nil, err
	}
	res := out.AppPurchaseOneTimeCreate
	if err := rejected(op, res.UserErrors); err != nil {
		return nil, err
	}
	if res.AppPurchaseOneTime == nil || res.ConfirmationURL == "" {
		return nil, fmt.Errorf("%w: %s: response without purchase", billing.ErrGatewayUnreachable, op)
	}
	return &billing.Charge{
		ID:              res.AppPurchaseOneTime.ID,
		ConfirmationURL: res.ConfirmationURL,
		Status:          res.AppPurchaseOneTime.Status,
	}, nil
}

// GetActiveSubscription returns the first ACTIVE subscription of the
// installation, or nil.
func (c *Client) GetActiveSubscription(ctx context.Context, creds billing.Credentials) (*billing.ActiveSubscription, error) {
	var out struct {
		CurrentAppInstallation struct {
			ActiveSubscriptions []struct {
				ID               string     `json:"id"`
				Name             string     `json:"name"`
				Status           string     `json:"status"`
				TrialDays        int        `json:"trialDays"`
				Test             bool       `json:"test"`
				CurrentPeriodEnd *time.Time `json:"currentPeriodEnd"`
				CreatedAt        time.Time  `json:"createdAt"`
			} `json:"activeSubscriptions"`
		} `json:"currentAppInstallation"`
	}
	if err := c.do(ctx, "activeSubscriptions", creds, activeSubscriptionsQuery, nil, &out); err != nil {
		return nil, err
	}
	for _, s := range out.CurrentAppInstallation.ActiveSubscriptions {
		if s.Status != billing.ChargeStatusActive {
			continue
		}
		return &billing.ActiveSubscription{
			ID:               s.ID,
			Name:             s.Name,
			Status:           s.Status,
			TrialDays:        s.TrialDays,
			Test:             s.Test,
			CurrentPeriodEnd: s.CurrentPeriodEnd,
			CreatedAt:        s.CreatedAt,
		}, nil
	}
	return nil, nil
}

// CancelSubscription cancels the app subscription with the given global id.
func (c *Client) CancelSubscription(ctx context.Context, creds billing.Credentials, subscriptionID string) error {
	var out struct {
		AppSubscriptionCancel struct {
			AppSubscription *chargeRef          `json:"appSubscription"`
			UserErrors      []billing.UserError `json:"userErrors"`
		} `json:"appSubscriptionCancel"`
	}
	const op = "appSubscriptionCancel"
	vars := map[string]any{"id": AppSubscriptionGID(subscriptionID)}
	if err := c.do(ctx, op, creds, appSubscriptionCancel, vars, &out); err != nil {
		return err
	}
	return rejected(op, out.AppSubscriptionCancel.UserErrors)
}

// GetOneTimeCharge looks up a one-time purchase. It returns nil when the id
// does not resolve to a purchase.
func (c *Client) GetOneTimeCharge(ctx context.Context, creds billing.Credentials, chargeID string) (*billing.OneTimeCharge, error) {
	var out struct {
		Node *struct {
			ID     string   `json:"id"`
			Name   string   `json:"name"`
			Status string   `json:"status"`
			Test   bool     `json:"test"`
			Price  *moneyV2 `json:"price"`
		} `json:"node"`
	}
	vars := map[string]any{"id": OneTimeChargeGID(chargeID)}
	if err := c.do(ctx, "oneTimePurchase", creds, oneTimePurchaseQuery, vars, &out); err != nil {
		return nil, err
	}
	if out.Node == nil || out.Node.ID == "" {
		return nil, nil
	}
	charge := &billing.OneTimeCharge{
		ID:     out.Node.ID,
		Name:   out.Node.Name,
		Status: out.Node.Status,
		Test:   out.Node.Test,
	}
	if out.Node.Price != nil {
		charge.Price = billing.Money{Amount: out.Node.Price.Amount, Currency: out.Node.Price.CurrencyCode}
	}
	return charge, nil
}
