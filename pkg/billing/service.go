package billing

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/tokens"
)

// Service is the single facade over subscription state, reconciliation and
// the token ledger. Every entry point that depends on subscription state goes
// through the same Guard.
type Service interface {
	// Subscription lifecycle
	RequestSubscribe(ctx context.Context, cmd SubscribeCommand) (*Confirmation, error)
	HandleApprovalCallback(ctx context.Context, cb ApprovalCallback) (*Subscription, error)
	Activate(ctx context.Context, cmd ActivateCommand) (*Confirmation, error)
	Cancel(ctx context.Context, cmd CancelCommand) (*Subscription, error)

	// Reads
	BillingInfo(ctx context.Context, shop string) (*Info, error)
	Reconcile(ctx context.Context, shop string) (*Subscription, error)

	// Tokens
	PurchaseTokens(ctx context.Context, cmd PurchaseTokensCommand) (*Confirmation, error)
	ConfirmTokenPurchase(ctx context.Context, cb TokenPurchaseCallback) (*tokens.Balance, error)
	RecurringBillingSucceeded(ctx context.Context, sig BillingSuccessSignal) error
	CheckAccess(ctx context.Context, check AccessCheck) (*Access, error)
	ConsumeTokens(ctx context.Context, cmd ConsumeCommand) (*tokens.Balance, error)

	Uninstall(ctx context.Context, sig UninstallSignal) error
}

// Ledger is the subset of the token ledger the billing service drives.
type Ledger interface {
	GetOrCreate(ctx context.Context, shop string) (*tokens.Balance, error)
	HasBalance(ctx context.Context, shop string, amount int64) (bool, error)
	Debit(ctx context.Context, shop string, amount int64, feature string, metadata map[string]any) (*tokens.Balance, error)
	CreditPurchase(ctx context.Context, shop string, usd decimal.Decimal, tokenCount int64, chargeID string) (*tokens.Balance, error)
	ConfirmPurchase(ctx context.Context, shop string, usd decimal.Decimal, tokenCount int64, chargeID string) (*tokens.Balance, error)
	SetIncludedTokens(ctx context.Context, shop string, tokenCount int64, plan, subscriptionID string) (*tokens.Balance, error)
	AddIncludedTokens(ctx context.Context, shop string, tokenCount int64, plan string) (*tokens.Balance, error)
	MonthlyRefresh(ctx context.Context, shop, plan, eventID string) (*tokens.Balance, error)
	Delete(ctx context.Context, shop string) error
}

// Confirmation is returned by operations that send the merchant to an
// external approval page.
type Confirmation struct {
	URL            string `json:"confirmationUrl"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	ChargeID       string `json:"chargeId,omitempty"`
	Tokens         int64  `json:"tokens,omitempty"`
}

// ServiceOption configures the billing service.
type ServiceOption func(*service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithViewCache sets the billing view cache. Without it views are built on every read.
func WithViewCache(c ViewCache) ServiceOption {
	return func(s *service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

type service struct {
	cfg     Config
	catalog *Catalog
	gateway Gateway
	subs    SubscriptionStore
	creds   CredentialStore
	ledger  Ledger
	cache   ViewCache
	guard   *Guard
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the billing facade.
// Panics if a required dependency is nil to fail fast during initialization.
func NewService(cfg Config, catalog *Catalog, gateway Gateway, subs SubscriptionStore, creds CredentialStore, ledger Ledger, opts ...ServiceOption) Service {
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	if gateway == nil {
		panic("billing: Gateway is required")
	}
	if subs == nil {
		panic("billing: SubscriptionStore is required")
	}
	if creds == nil {
		panic("billing: CredentialStore is required")
	}
	if ledger == nil {
		panic("billing: Ledger is required")
	}

	s := &service{
		cfg:     cfg,
		catalog: catalog,
		gateway: gateway,
		subs:    subs,
		creds:   creds,
		ledger:  ledger,
		cache:   nopCache{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With(logger.Component("billing"))
	s.guard = NewGuard(subs, creds, gateway, s.cache, s.logger)

	return s
}

func (s *service) Reconcile(ctx context.Context, shop string) (*Subscription, error) {
	return s.guard.Reconcile(ctx, shop)
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}

// invalidate drops the cached view. Called only after a write has completed.
func (s *service) invalidate(ctx context.Context, shop string) {
	if err := s.cache.Invalidate(ctx, shop); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate billing view", logger.Shop(shop), logger.Error(err))
	}
}

func (s *service) returnURL(path string, params url.Values) string {
	u, err := url.Parse(s.cfg.AppURL)
	if err != nil {
		return s.cfg.AppURL + path + "?" + params.Encode()
	}
	u = u.JoinPath(path)
	u.RawQuery = params.Encode()
	return u.String()
}

func (s *service) credentials(ctx context.Context, shop string) (Credentials, error) {
	return s.creds.Credentials(ctx, shop)
}
