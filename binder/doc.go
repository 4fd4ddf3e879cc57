// Package binder decodes HTTP requests into typed command structs.
//
// Binders have the signature func(*http.Request, any) error and are chained
// by handler.Wrap. Struct tags select the source:
//
//	type Callback struct {
//		Shop     string          `query:"shop"`
//		Amount   decimal.Decimal `query:"usd"`
//		EventID  string          `header:"X-Shopify-Webhook-Id"`
//	}
//
// Fields implementing encoding.TextUnmarshaler are decoded through it.
package binder
