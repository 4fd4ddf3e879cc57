package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"github.com/rankfoundry/shopseo/handler"
	"github.com/rankfoundry/shopseo/pkg/billing"
	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
	"github.com/rankfoundry/shopseo/pkg/shopify"
)

const (
	hmacHeader     = "X-Shopify-Hmac-Sha256"
	maxWebhookBody = 1 << 20
)

type billingSuccessWebhook struct {
	Shop            string `header:"X-Shopify-Shop-Domain" json:"-"`
	WebhookID       string `header:"X-Shopify-Webhook-Id" json:"-"`
	AppSubscription struct {
		ID     string `json:"admin_graphql_api_id"`
		Status string `json:"status"`
	} `json:"app_subscription"`
}

type appUninstalledWebhook struct {
	Shop            string `header:"X-Shopify-Shop-Domain" json:"-"`
	MyshopifyDomain string `json:"myshopify_domain"`
}

func (b *Billing) billingSuccess(ctx handler.Context, req billingSuccessWebhook) handler.Response {
	sig := billing.BillingSuccessSignal{
		Shop:           req.Shop,
		SubscriptionID: shopify.AppSubscriptionGID(req.AppSubscription.ID),
		EventID:        req.WebhookID,
	}
	if err := b.svc.RecurringBillingSucceeded(ctx, sig); err != nil {
		b.webhookFailed(ctx, "billing_success", req.Shop, err)
	}
	return handler.Status(http.StatusOK)
}

func (b *Billing) appUninstalled(ctx handler.Context, req appUninstalledWebhook) handler.Response {
	shop := req.Shop
	if shop == "" {
		shop = req.MyshopifyDomain
	}
	if err := b.svc.Uninstall(ctx, billing.UninstallSignal{Shop: shop}); err != nil {
		b.webhookFailed(ctx, "app_uninstalled", shop, err)
	}
	return handler.Status(http.StatusOK)
}

func (b *Billing) webhookFailed(ctx handler.Context, webhook, shop string, err error) {
	metrics.IncCallbackFailure(webhook)
	b.log.ErrorContext(ctx, "webhook processing failed",
		logger.Event(webhook),
		logger.Shop(shop),
		logger.Error(err),
	)
}

// webhookErrorHandler acknowledges undecodable webhooks so the gateway does
// not keep redelivering them.
func (b *Billing) webhookErrorHandler(webhook string) handler.ErrorHandler[handler.Context] {
	return func(ctx handler.Context, err error) {
		b.webhookFailed(ctx, webhook, ctx.Request().Header.Get("X-Shopify-Shop-Domain"), err)
		ctx.ResponseWriter().WriteHeader(http.StatusOK)
	}
}

// verifyWebhook rejects webhooks whose body does not match the HMAC-SHA256
// signature computed with secret. An empty secret disables the check.
func verifyWebhook(secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				_ = handler.JSONError(handler.BadRequest(err)).Render(w, r)
				return
			}

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write(body)
			got, err := base64.StdEncoding.DecodeString(r.Header.Get(hmacHeader))
			if err != nil || !hmac.Equal(got, mac.Sum(nil)) {
				log.WarnContext(r.Context(), "webhook signature mismatch",
					logger.Shop(r.Header.Get("X-Shopify-Shop-Domain")),
					slog.String("path", r.URL.Path),
				)
				_ = handler.JSONError(handler.NewHTTPError(http.StatusUnauthorized, "invalid_signature", nil)).Render(w, r)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}
