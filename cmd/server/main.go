package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/config"
	"github.com/rankfoundry/shopseo/pkg/httpserver"
	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
	"github.com/rankfoundry/shopseo/pkg/mongo"
	"github.com/rankfoundry/shopseo/pkg/redis"
	"github.com/rankfoundry/shopseo/pkg/requestid"
	"github.com/rankfoundry/shopseo/pkg/secrets"
	"github.com/rankfoundry/shopseo/pkg/shopify"
	"github.com/rankfoundry/shopseo/pkg/tokens"
	"github.com/rankfoundry/shopseo/svc/api"
	"github.com/rankfoundry/shopseo/svc/mongostore"
	"github.com/rankfoundry/shopseo/svc/plansource"
	"github.com/rankfoundry/shopseo/svc/viewcache"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		slog.Error("failed to load config", logger.Error(err))
		os.Exit(1)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "shopseo"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	metrics.MustRegister()

	db, err := mongo.ConnectDatabase(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Client().Disconnect(context.Background()); err != nil {
			log.Error("failed to disconnect mongo", logger.Error(err))
		}
	}()
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	checks := map[string]httpserver.Check{"mongo": mongo.Healthcheck(db.Client())}

	cache, rdb, err := newViewCache(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = redis.Healthcheck(rdb)
	}

	catalog, err := loadCatalog(ctx, cfg.PlansFile)
	if err != nil {
		return err
	}

	sealer, err := secrets.NewSealerFromConfig(cfg.Secrets)
	if err != nil {
		return err
	}

	ledger := tokens.NewLedger(
		mongostore.NewBalances(db),
		catalog,
		tokens.WithInvalidator(cache),
		tokens.WithLogger(log),
	)
	svc := billing.NewService(
		cfg.Billing,
		catalog,
		shopify.NewClient(cfg.Shopify, shopify.WithLogger(log)),
		mongostore.NewSubscriptions(db),
		mongostore.NewShops(db, sealer),
		ledger,
		billing.WithViewCache(cache),
		billing.WithLogger(log),
	)

	router := api.Router(api.RouterOptions{
		Billing: api.NewBilling(svc, cfg.Billing.AppURL,
			api.WithLogger(log),
			api.WithWebhookSecret(cfg.WebhookSecret),
		),
		HealthChecks: checks,
		Logger:       log,
	})

	log.InfoContext(ctx, "starting billing server",
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("cache", cfg.CacheBackend),
		slog.Int("plans", len(catalog.Plans())),
	)
	return httpserver.New(cfg.HTTP, log).Run(ctx, router)
}

// newViewCache returns the configured billing view cache and, for the Redis
// backend, the client so the caller can close and health-check it.
func newViewCache(ctx context.Context, cfg appConfig) (billing.ViewCache, *goredis.Client, error) {
	switch cfg.CacheBackend {
	case cacheRedis:
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return viewcache.NewRedis(rdb, cfg.CacheTTL, viewcache.WithUnsettledTTL(cfg.CacheUnsettledTTL)), rdb, nil
	case cacheMemory:
		return viewcache.NewMemory(cfg.CacheSize, cfg.CacheTTL, viewcache.WithUnsettledTTL(cfg.CacheUnsettledTTL)), nil, nil
	case cacheNone, "":
		return viewcache.Noop{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown BILLING_CACHE_BACKEND %q", cfg.CacheBackend)
	}
}

func loadCatalog(ctx context.Context, path string) (*billing.Catalog, error) {
	var src billing.CatalogSource = plansource.NewDefault()
	if path != "" {
		src = plansource.NewYAMLFile(path)
	}
	catalog, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(billing.ErrFailedLoadPlans, err)
	}
	return catalog, nil
}
