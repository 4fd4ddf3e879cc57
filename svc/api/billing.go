package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rankfoundry/shopseo/binder"
	"github.com/rankfoundry/shopseo/handler"
	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
	"github.com/rankfoundry/shopseo/pkg/shopify"
)

// Billing serves the billing routes on top of a billing.Service.
type Billing struct {
	svc           billing.Service
	appURL        string
	webhookSecret string
	log           *slog.Logger
	errorHandler  handler.ErrorHandler[handler.Context]
}

// Option configures Billing.
type Option func(*Billing)

func WithLogger(l *slog.Logger) Option {
	return func(b *Billing) {
		if l != nil {
			b.log = l
		}
	}
}

// WithWebhookSecret enables X-Shopify-Hmac-Sha256 verification on webhook
// routes. Without a secret webhooks are accepted unsigned.
func WithWebhookSecret(secret string) Option {
	return func(b *Billing) { b.webhookSecret = secret }
}

// NewBilling creates the billing routes. appURL is the embedded app's base
// URL that approval callbacks redirect back to.
// Panics if svc is nil.
func NewBilling(svc billing.Service, appURL string, opts ...Option) *Billing {
	if svc == nil {
		panic("api: billing.Service is required")
	}
	b := &Billing{
		svc:    svc,
		appURL: appURL,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Component("api"))
	b.errorHandler = handler.NewErrorHandler(b.log)
	return b
}

// Handle returns the billing router.
func (b *Billing) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/billing", wrap(b.errorHandler, b.info, binder.BindQuery()))
	r.Post("/billing/subscribe", wrap(b.errorHandler, b.subscribe, binder.BindJSON()))
	r.Get("/billing/callback", wrap(b.callbackErrorHandler("subscription_approval", "billing"), b.approvalCallback, binder.BindQuery()))
	r.Post("/billing/activate", wrap(b.errorHandler, b.activate, binder.BindJSON()))
	r.Post("/billing/cancel", wrap(b.errorHandler, b.cancel, binder.BindJSON()))

	r.Post("/tokens/purchase", wrap(b.errorHandler, b.purchase, binder.BindJSON()))
	r.Get("/tokens/callback", wrap(b.callbackErrorHandler("token_purchase", "tokens"), b.tokenCallback, binder.BindQuery()))
	r.Post("/tokens/consume", wrap(b.errorHandler, b.consume, binder.BindJSON()))
	r.Post("/features/check", wrap(b.errorHandler, b.check, binder.BindJSON()))

	r.Group(func(r chi.Router) {
		r.Use(verifyWebhook(b.webhookSecret, b.log))
		r.Post("/webhooks/billing-success", wrap(b.webhookErrorHandler("billing_success"), b.billingSuccess, binder.BindHeader(), binder.BindRawJSON()))
		r.Post("/webhooks/app-uninstalled", wrap(b.webhookErrorHandler("app_uninstalled"), b.appUninstalled, binder.BindHeader(), binder.BindRawJSON()))
	})

	return r
}

func wrap[R any](eh handler.ErrorHandler[handler.Context], h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](eh),
	)
}

// fail logs err and renders it as a JSON error.
func (b *Billing) fail(ctx handler.Context, op string, err error) handler.Response {
	httpErr, meta := classify(err)

	level := slog.LevelWarn
	if httpErr.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	b.log.LogAttrs(ctx, level, "billing request failed",
		logger.Event(op),
		slog.Int("status_code", httpErr.Status),
		logger.Error(err),
	)

	if meta != nil {
		return handler.JSONErrorWithMeta(httpErr, meta)
	}
	return handler.JSONError(httpErr)
}

type infoRequest struct {
	Shop string `query:"shop"`
}

func (b *Billing) info(ctx handler.Context, req infoRequest) handler.Response {
	info, err := b.svc.BillingInfo(ctx, req.Shop)
	if err != nil {
		return b.fail(ctx, "billing_info", err)
	}
	return handler.JSON(info)
}

func (b *Billing) subscribe(ctx handler.Context, cmd billing.SubscribeCommand) handler.Response {
	conf, err := b.svc.RequestSubscribe(ctx, cmd)
	if err != nil {
		return b.fail(ctx, "subscribe", err)
	}
	return handler.JSON(conf)
}

func (b *Billing) activate(ctx handler.Context, cmd billing.ActivateCommand) handler.Response {
	conf, err := b.svc.Activate(ctx, cmd)
	if err != nil {
		return b.fail(ctx, "activate", err)
	}
	return handler.JSON(conf)
}

func (b *Billing) cancel(ctx handler.Context, cmd billing.CancelCommand) handler.Response {
	sub, err := b.svc.Cancel(ctx, cmd)
	if err != nil {
		return b.fail(ctx, "cancel", err)
	}
	return handler.JSON(toSubscriptionView(sub))
}

func (b *Billing) purchase(ctx handler.Context, cmd billing.PurchaseTokensCommand) handler.Response {
	conf, err := b.svc.PurchaseTokens(ctx, cmd)
	if err != nil {
		return b.fail(ctx, "purchase_tokens", err)
	}
	return handler.JSON(conf)
}

func (b *Billing) consume(ctx handler.Context, cmd billing.ConsumeCommand) handler.Response {
	bal, err := b.svc.ConsumeTokens(ctx, cmd)
	if err != nil {
		return b.fail(ctx, "consume_tokens", err)
	}
	return handler.JSON(toBalanceView(bal))
}

func (b *Billing) check(ctx handler.Context, check billing.AccessCheck) handler.Response {
	access, err := b.svc.CheckAccess(ctx, check)
	if err != nil {
		return b.fail(ctx, "check_access", err)
	}
	return handler.JSON(access)
}

// approvalCallback finalizes a subscription approval. The gateway sends the
// numeric charge id, the service compares global ids.
func (b *Billing) approvalCallback(ctx handler.Context, cb billing.ApprovalCallback) handler.Response {
	cb.ChargeID = shopify.AppSubscriptionGID(cb.ChargeID)

	sub, err := b.svc.HandleApprovalCallback(ctx, cb)
	if err != nil {
		return b.callbackFailed(ctx, "subscription_approval", "billing", cb.Shop, cb.ReturnTo, err)
	}
	return handler.Redirect(b.redirectURL(cb.ReturnTo, url.Values{
		"shop":    {cb.Shop},
		"billing": {"approved"},
		"plan":    {sub.Plan},
	}))
}

func (b *Billing) tokenCallback(ctx handler.Context, cb billing.TokenPurchaseCallback) handler.Response {
	cb.ChargeID = shopify.OneTimeChargeGID(cb.ChargeID)

	bal, err := b.svc.ConfirmTokenPurchase(ctx, cb)
	if err != nil {
		return b.callbackFailed(ctx, "token_purchase", "tokens", cb.Shop, cb.ReturnTo, err)
	}
	return handler.Redirect(b.redirectURL(cb.ReturnTo, url.Values{
		"shop":    {cb.Shop},
		"tokens":  {"credited"},
		"balance": {strconv.FormatInt(bal.Balance, 10)},
	}))
}

func (b *Billing) callbackFailed(ctx handler.Context, callback, param, shop, returnTo string, err error) handler.Response {
	httpErr, _ := classify(err)
	metrics.IncCallbackFailure(callback)
	b.log.ErrorContext(ctx, "billing callback failed",
		logger.Event(callback),
		logger.Shop(shop),
		slog.String("error_code", httpErr.Code),
		logger.Error(err),
	)

	params := url.Values{param: {"failed"}, "error": {httpErr.Code}}
	if shop != "" {
		params.Set("shop", shop)
	}
	return handler.Redirect(b.redirectURL(returnTo, params))
}

// callbackErrorHandler keeps the redirect contract when the callback query
// itself cannot be decoded.
func (b *Billing) callbackErrorHandler(callback, param string) handler.ErrorHandler[handler.Context] {
	return func(ctx handler.Context, err error) {
		q := ctx.Request().URL.Query()
		resp := b.callbackFailed(ctx, callback, param, q.Get("shop"), q.Get("returnTo"), err)
		if rerr := resp.Render(ctx.ResponseWriter(), ctx.Request()); rerr != nil {
			b.log.ErrorContext(ctx, "failed to render callback redirect", logger.Error(rerr))
		}
	}
}

// redirectURL resolves returnTo against the app URL. Anything that is not
// an absolute path inside the app falls back to the app root.
func (b *Billing) redirectURL(returnTo string, params url.Values) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		returnTo = "/"
	}
	ref, err := url.Parse(returnTo)
	if err != nil {
		ref = &url.URL{Path: "/"}
	}

	q := ref.Query()
	for k, vs := range params {
		q[k] = vs
	}

	base, err := url.Parse(b.appURL)
	if err != nil || b.appURL == "" {
		return ref.Path + "?" + q.Encode()
	}
	u := base.JoinPath(ref.Path)
	u.RawQuery = q.Encode()
	return u.String()
}
