package api_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

type mockService struct {
	mock.Mock
}

var _ billing.Service = (*mockService)(nil)

func (m *mockService) RequestSubscribe(ctx context.Context, cmd billing.SubscribeCommand) (*billing.Confirmation, error) {
	args := m.Called(ctx, cmd)
	conf, _ := args.Get(0).(*billing.Confirmation)
	return conf, args.Error(1)
}

func (m *mockService) HandleApprovalCallback(ctx context.Context, cb billing.ApprovalCallback) (*billing.Subscription, error) {
	args := m.Called(ctx, cb)
	sub, _ := args.Get(0).(*billing.Subscription)
	return sub, args.Error(1)
}

func (m *mockService) Activate(ctx context.Context, cmd billing.ActivateCommand) (*billing.Confirmation, error) {
	args := m.Called(ctx, cmd)
	conf, _ := args.Get(0).(*billing.Confirmation)
	return conf, args.Error(1)
}

func (m *mockService) Cancel(ctx context.Context, cmd billing.CancelCommand) (*billing.Subscription, error) {
	args := m.Called(ctx, cmd)
	sub, _ := args.Get(0).(*billing.Subscription)
	return sub, args.Error(1)
}

func (m *mockService) BillingInfo(ctx context.Context, shop string) (*billing.Info, error) {
	args := m.Called(ctx, shop)
	info, _ := args.Get(0).(*billing.Info)
	return info, args.Error(1)
}

func (m *mockService) Reconcile(ctx context.Context, shop string) (*billing.Subscription, error) {
	args := m.Called(ctx, shop)
	sub, _ := args.Get(0).(*billing.Subscription)
	return sub, args.Error(1)
}

func (m *mockService) PurchaseTokens(ctx context.Context, cmd billing.PurchaseTokensCommand) (*billing.Confirmation, error) {
	args := m.Called(ctx, cmd)
	conf, _ := args.Get(0).(*billing.Confirmation)
	return conf, args.Error(1)
}

func (m *mockService) ConfirmTokenPurchase(ctx context.Context, cb billing.TokenPurchaseCallback) (*tokens.Balance, error) {
	args := m.Called(ctx, cb)
	bal, _ := args.Get(0).(*tokens.Balance)
	return bal, args.Error(1)
}

func (m *mockService) RecurringBillingSucceeded(ctx context.Context, sig billing.BillingSuccessSignal) error {
	return m.Called(ctx, sig).Error(0)
}

func (m *mockService) CheckAccess(ctx context.Context, check billing.AccessCheck) (*billing.Access, error) {
	args := m.Called(ctx, check)
	access, _ := args.Get(0).(*billing.Access)
	return access, args.Error(1)
}

func (m *mockService) ConsumeTokens(ctx context.Context, cmd billing.ConsumeCommand) (*tokens.Balance, error) {
	args := m.Called(ctx, cmd)
	bal, _ := args.Get(0).(*tokens.Balance)
	return bal, args.Error(1)
}

func (m *mockService) Uninstall(ctx context.Context, sig billing.UninstallSignal) error {
	return m.Called(ctx, sig).Error(0)
}
