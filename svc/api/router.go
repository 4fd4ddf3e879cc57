package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rankfoundry/shopseo/pkg/httpserver"
	"github.com/rankfoundry/shopseo/pkg/requestid"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures the top-level router. Billing is required.
type RouterOptions struct {
	Billing        Mountable
	HealthChecks   map[string]httpserver.Check
	HealthTimeout  time.Duration
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

// Router assembles the process router.
//
//	r := api.Router(api.RouterOptions{
//		Billing:      api.NewBilling(svc, cfg.AppURL, api.WithLogger(log)),
//		HealthChecks: map[string]httpserver.Check{"mongo": mongo.Healthcheck(client)},
//	})
func Router(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 2 * time.Second
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthHandler(opts.Logger, opts.HealthTimeout, opts.HealthChecks))
	r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)

	if opts.Billing != nil {
		r.Mount("/", opts.Billing.Handle())
	}
	return r
}
