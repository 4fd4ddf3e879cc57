// Package api exposes the billing service over HTTP.
//
// Billing.Handle mounts the merchant-facing JSON routes, the approval
// callbacks the gateway redirects back to and the gateway webhooks:
//
//	GET  /billing                     billing view for ?shop=
//	POST /billing/subscribe           request a plan, returns the confirmation URL
//	GET  /billing/callback            subscription approval return (always redirects)
//	POST /billing/activate            end the trial or start billing
//	POST /billing/cancel              cancel the subscription
//	POST /tokens/purchase             request a one-time token charge
//	GET  /tokens/callback             token charge approval return (always redirects)
//	POST /tokens/consume              debit tokens for a feature use
//	POST /features/check              feature access check
//	POST /webhooks/billing-success    recurring charge succeeded (always 200)
//	POST /webhooks/app-uninstalled    app removed from the shop (always 200)
//
// Router adds request ids, panic recovery, /healthz and /metrics around it.
//
// Callback and webhook routes never surface failures to the caller: a
// callback redirects back to the app with billing=failed (or tokens=failed)
// and an error code, a webhook answers 200. Both log the failure and count
// it in billing_callback_failures_total.
package api
