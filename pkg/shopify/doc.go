// Package shopify implements billing.Gateway over the Shopify GraphQL Admin
// API.
//
// Every call is a POST to https://{shop}/admin/api/{version}/graphql.json
// authenticated with the shop's offline access token. Transport failures,
// non-2xx responses and top-level GraphQL errors surface as
// billing.ErrGatewayUnreachable; mutation userErrors surface as
// *billing.GatewayRejectedError.
//
//	client := shopify.NewClient(cfg, shopify.WithLogger(log))
//	charge, err := client.CreateRecurringCharge(ctx, creds, req)
//
// Shopify redirects merchants back with numeric charge ids; use
// AppSubscriptionGID and OneTimeChargeGID to turn them into the global ids
// the API returns.
package shopify
