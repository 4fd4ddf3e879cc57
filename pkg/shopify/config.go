package shopify

import "time"

// Config configures the Admin API client.
type Config struct {
	APIVersion     string        `env:"SHOPIFY_API_VERSION" envDefault:"2024-10"`
	RequestTimeout time.Duration `env:"SHOPIFY_REQUEST_TIMEOUT" envDefault:"15s"`
	// Scheme is overridden in tests that point the client at httptest servers.
	Scheme string `env:"SHOPIFY_API_SCHEME" envDefault:"https"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		APIVersion:     "2024-10",
		RequestTimeout: 15 * time.Second,
		Scheme:         "https",
	}
}
