// Package tokens implements the per-shop token ledger.
//
// A shop's Balance is a materialized view over two append-only histories:
// purchases (credits bought through one-time charges) and usage (debits,
// included-token grants and monthly refresh adjustments, each carrying a
// signed delta). Replay recomputes the balance from those histories and is
// always equal to Balance.Balance for a consistent document.
//
// Every mutation is a compare-and-swap on Balance.Version, retried a bounded
// number of times, so concurrent debits for the same shop can never push the
// balance below zero.
//
// Included tokens come from the shop's plan and are consumed before purchased
// tokens. SetIncludedTokens replaces the included portion (plan changes) while
// AddIncludedTokens stacks on top of it (explicit activation); the two are not
// interchangeable.
package tokens
