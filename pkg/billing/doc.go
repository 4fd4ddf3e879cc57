// Package billing implements the subscription lifecycle of a Shopify embedded
// app: plan subscriptions and plan changes, explicit activation, cancellation,
// token purchases and the reconciliation of local state against the billing
// gateway.
//
// The gateway is eventually consistent and the merchant approves every charge
// on a hosted page the app does not control, so local markers (a pending plan,
// an activation timestamp) can go stale when the merchant walks away. Guard
// detects such markers by asking the gateway for the currently active
// subscription and clears them as a side effect of the read. Every Service
// entry point that depends on subscription state runs the guard first.
//
// Only the approval callback may create a subscription row, and only through
// the FirstInstall finalization; every other write is a conditional update
// that fails with ErrStaleWrite when the row changed underneath it.
//
// Basic wiring:
//
//	catalog, _ := plansource.NewDefault().Load(ctx)
//	ledger := tokens.NewLedger(balanceStore, catalog, tokens.WithInvalidator(viewCache))
//	svc := billing.NewService(cfg, catalog, shopifyClient, subscriptionStore, shopStore, ledger,
//		billing.WithViewCache(viewCache),
//		billing.WithLogger(log),
//	)
//
//	conf, err := svc.RequestSubscribe(ctx, billing.SubscribeCommand{Shop: shop, Plan: "starter"})
//	// redirect the merchant to conf.URL
package billing
