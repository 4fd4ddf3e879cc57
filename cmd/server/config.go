package main

import (
	"time"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/httpserver"
	"github.com/rankfoundry/shopseo/pkg/mongo"
	"github.com/rankfoundry/shopseo/pkg/redis"
	"github.com/rankfoundry/shopseo/pkg/secrets"
	"github.com/rankfoundry/shopseo/pkg/shopify"
)

// Cache backends for the billing view.
const (
	cacheRedis  = "redis"
	cacheMemory = "memory"
	cacheNone   = "none"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL"`

	CacheBackend string        `env:"BILLING_CACHE_BACKEND" envDefault:"redis"`
	CacheTTL     time.Duration `env:"BILLING_CACHE_TTL" envDefault:"5m"`
	CacheSize    int           `env:"BILLING_CACHE_SIZE" envDefault:"10000"`

	// Views with a pending plan or an activation expire sooner so an abandoned
	// approval is reconciled quickly.
	CacheUnsettledTTL time.Duration `env:"BILLING_CACHE_UNSETTLED_TTL" envDefault:"30s"`

	// PlansFile overrides the built-in plan catalog when set.
	PlansFile     string `env:"BILLING_PLANS_FILE"`
	WebhookSecret string `env:"SHOPIFY_API_SECRET"`

	Billing billing.Config
	HTTP    httpserver.Config
	Mongo   mongo.Config
	Redis   redis.Config
	Shopify shopify.Config
	Secrets secrets.Config
}
