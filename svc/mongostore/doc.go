// Package mongostore persists subscriptions, token balances and shop
// credentials in MongoDB.
//
// Every write is a single-document operation whose filter carries the
// preconditions, so concurrent writers cannot interleave: subscription
// updates use FindOneAndUpdate on the stale values, balance writes are a
// compare-and-swap on a version counter. Only a FirstInstall finalization
// upserts.
//
// The filter and update documents are built by pure functions so they can
// be checked without a server.
package mongostore
