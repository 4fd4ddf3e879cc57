package tokens

import (
	"context"
	"log/slog"
	"time"
)

// Allowance resolves how many included tokens a plan grants per billing cycle.
type Allowance interface {
	IncludedTokens(plan string) int64
}

// AllowanceFunc adapts a function to Allowance.
type AllowanceFunc func(plan string) int64

func (f AllowanceFunc) IncludedTokens(plan string) int64 { return f(plan) }

// Invalidator drops cached read views of a shop after a committed mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, shop string) error
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithLogger(l *slog.Logger) Option {
	return func(led *Ledger) {
		if l != nil {
			led.logger = l
		}
	}
}

// WithInvalidator registers the cache invalidation collaborator.
func WithInvalidator(inv Invalidator) Option {
	return func(led *Ledger) {
		if inv != nil {
			led.invalidator = inv
		}
	}
}

// WithMaxAttempts bounds compare-and-swap retries. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(led *Ledger) {
		if n > 0 {
			led.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(led *Ledger) {
		if now != nil {
			led.now = now
		}
	}
}

// WithIDGenerator overrides the generator used for ledger entry ids.
func WithIDGenerator(gen func() string) Option {
	return func(led *Ledger) {
		if gen != nil {
			led.newID = gen
		}
	}
}
