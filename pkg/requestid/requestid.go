// Package requestid assigns a correlation id to every HTTP request and makes
// it available to handlers and to the logger.
package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/rankfoundry/shopseo/pkg/logger"
)

const (
	Header = "X-Request-ID"

	// ShopifyHeader is set by Shopify on webhook deliveries and proxied calls.
	ShopifyHeader = "X-Shopify-Request-Id"

	maxLength = 128
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type ctxKey struct{}

func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Middleware reuses a well-formed incoming id (own header first, then
// Shopify's) or generates a UUID, echoes it in the response and stores it in
// the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := pick(r.Header.Get(Header), r.Header.Get(ShopifyHeader))
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

func pick(candidates ...string) string {
	for _, c := range candidates {
		if c != "" && len(c) <= maxLength && validID.MatchString(c) {
			return c
		}
	}
	return uuid.NewString()
}

// LoggerExtractor adds the request id to log records written with a
// request context.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id := FromContext(ctx)
		if id == "" {
			return slog.Attr{}, false
		}
		return logger.RequestID(id), true
	}
}
