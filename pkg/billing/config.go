package billing

import "github.com/shopspring/decimal"

// Config holds billing settings loaded from the environment.
type Config struct {
	AppURL                string          `env:"APP_URL,required"`                                      // Public base URL the gateway redirects back to.
	TestCharges           bool            `env:"BILLING_TEST_CHARGES" envDefault:"true"`                // Create test charges that are never billed.
	SubscriptionReturnURI string          `env:"BILLING_SUBSCRIPTION_RETURN_URI" envDefault:"/billing/callback"`
	TokensReturnURI       string          `env:"BILLING_TOKENS_RETURN_URI" envDefault:"/tokens/callback"`
	TokensPerUSD          int64           `env:"TOKENS_PER_USD" envDefault:"100000"`
	MinPurchaseUSD        decimal.Decimal `env:"TOKENS_MIN_PURCHASE_USD" envDefault:"1.00"`
	MaxPurchaseUSD        decimal.Decimal `env:"TOKENS_MAX_PURCHASE_USD" envDefault:"1000.00"`
}

// DefaultConfig mirrors the envDefault tags.
func DefaultConfig(appURL string) Config {
	return Config{
		AppURL:                appURL,
		TestCharges:           true,
		SubscriptionReturnURI: "/billing/callback",
		TokensReturnURI:       "/tokens/callback",
		TokensPerUSD:          100000,
		MinPurchaseUSD:        decimal.NewFromInt(1),
		MaxPurchaseUSD:        decimal.NewFromInt(1000),
	}
}
