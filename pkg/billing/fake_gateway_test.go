package billing_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

// fakeGateway records every call and answers from configurable state.
type fakeGateway struct {
	mu sync.Mutex

	seq        int
	active     *billing.ActiveSubscription
	oneTime    map[string]*billing.OneTimeCharge
	err        error
	recurring  []billing.RecurringChargeRequest
	purchases  []billing.OneTimeChargeRequest
	cancelled  []string
	fetchCount int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{oneTime: make(map[string]*billing.OneTimeCharge)}
}

func (g *fakeGateway) setActive(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if id == "" {
		g.active = nil
		return
	}
	g.active = &billing.ActiveSubscription{ID: id, Status: "ACTIVE"}
}

func (g *fakeGateway) setError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *fakeGateway) approveOneTime(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.oneTime[id]; ok {
		c.Status = billing.ChargeStatusActive
	}
}

func (g *fakeGateway) recurringRequests() []billing.RecurringChargeRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]billing.RecurringChargeRequest(nil), g.recurring...)
}

func (g *fakeGateway) fetches() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetchCount
}

func (g *fakeGateway) CreateRecurringCharge(_ context.Context, _ billing.Credentials, req billing.RecurringChargeRequest) (*billing.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.recurring = append(g.recurring, req)
	id := fmt.Sprintf("gid://shopify/AppSubscription/%d", g.seq)
	return &billing.Charge{
		ID:              id,
		ConfirmationURL: "https://admin.shopify.com/charges/" + id,
		Status:          billing.ChargeStatusPending,
	}, nil
}

func (g *fakeGateway) CreateOneTimeCharge(_ context.Context, _ billing.Credentials, req billing.OneTimeChargeRequest) (*billing.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.seq++
	g.purchases = append(g.purchases, req)
	id := fmt.Sprintf("gid://shopify/AppPurchaseOneTime/%d", g.seq)
	g.oneTime[id] = &billing.OneTimeCharge{
		ID:     id,
		Name:   req.Name,
		Status: billing.ChargeStatusPending,
		Price:  req.Price,
		Test:   req.Test,
	}
	return &billing.Charge{ID: id, ConfirmationURL: "https://admin.shopify.com/charges/" + id, Status: billing.ChargeStatusPending}, nil
}

func (g *fakeGateway) GetActiveSubscription(context.Context, billing.Credentials) (*billing.ActiveSubscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetchCount++
	if g.err != nil {
		return nil, g.err
	}
	if g.active == nil {
		return nil, nil
	}
	a := *g.active
	return &a, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, _ billing.Credentials, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.cancelled = append(g.cancelled, id)
	return nil
}

func (g *fakeGateway) GetOneTimeCharge(_ context.Context, _ billing.Credentials, id string) (*billing.OneTimeCharge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	c, ok := g.oneTime[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}
