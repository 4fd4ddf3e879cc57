package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rankfoundry/shopseo/pkg/logger"
	"github.com/rankfoundry/shopseo/pkg/metrics"
)

// maxRepairPasses bounds the clear-and-reload loop. Each pass clears at most
// one stale marker, and a row carries at most two.
const maxRepairPasses = 3

// Guard detects and repairs divergence between local pending/activation
// markers and the gateway's authoritative subscription. Running it on a
// consistent row is a no-op.
type Guard struct {
	subs    SubscriptionStore
	creds   CredentialStore
	gateway Gateway
	cache   ViewCache
	logger  *slog.Logger
}

// NewGuard creates a Guard. Panics if a required dependency is nil.
func NewGuard(subs SubscriptionStore, creds CredentialStore, gateway Gateway, cache ViewCache, log *slog.Logger) *Guard {
	if subs == nil || creds == nil || gateway == nil {
		panic("billing: guard requires a subscription store, credential store and gateway")
	}
	if cache == nil {
		cache = nopCache{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		subs:    subs,
		creds:   creds,
		gateway: gateway,
		cache:   cache,
		logger:  log.With(logger.Component("billing.guard")),
	}
}

// Reconcile returns the shop's subscription after clearing stale markers.
// It returns nil when the shop has no subscription row.
func (g *Guard) Reconcile(ctx context.Context, shop string) (*Subscription, error) {
	sub, err := g.load(ctx, shop)
	if err != nil || sub == nil {
		return nil, err
	}

	var (
		active  *ActiveSubscription
		fetched bool
		cleared bool
	)

	for range maxRepairPasses {
		repair, kind := g.unsubmittedActivation(sub)
		if repair == nil && needsGateway(sub) {
			if !fetched {
				if active, err = g.activeSubscription(ctx, shop); err != nil {
					return nil, err
				}
				fetched = true
			}
			repair, kind = g.unapproved(sub, active)
		}
		if repair == nil {
			break
		}

		_, uerr := g.subs.Update(ctx, shop, *repair)
		switch {
		case errors.Is(uerr, ErrStaleWrite):
			g.logger.DebugContext(ctx, "stale marker changed concurrently",
				logger.Shop(shop),
				logger.Event(kind),
			)
		case uerr != nil:
			return nil, fmt.Errorf("billing: clear stale %s: %w", kind, uerr)
		default:
			cleared = true
			metrics.IncGuardRepair(kind)
			g.logger.InfoContext(ctx, "cleared stale subscription marker",
				logger.Shop(shop),
				logger.Event(kind),
				logger.ChargeID(sub.SubscriptionID),
			)
		}

		// A concurrent approval callback may have written in between; only the
		// stored row is trusted from here on.
		if sub, err = g.load(ctx, shop); err != nil || sub == nil {
			break
		}
	}

	if cleared {
		if ierr := g.cache.Invalidate(ctx, shop); ierr != nil {
			g.logger.WarnContext(ctx, "failed to invalidate billing view", logger.Shop(shop), logger.Error(ierr))
		}
	}
	return sub, err
}

func (g *Guard) load(ctx context.Context, shop string) (*Subscription, error) {
	sub, err := g.subs.Get(ctx, shop)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("billing: load subscription: %w", err)
	}
	return sub, nil
}

func (g *Guard) activeSubscription(ctx context.Context, shop string) (*ActiveSubscription, error) {
	creds, err := g.creds.Credentials(ctx, shop)
	if err != nil {
		return nil, err
	}
	return g.gateway.GetActiveSubscription(ctx, creds)
}

func needsGateway(sub *Subscription) bool {
	return sub.PendingPlan != "" || (sub.IsActivated() && sub.SubscriptionID != "")
}

// unsubmittedActivation handles an activation that never reached the gateway.
func (g *Guard) unsubmittedActivation(sub *Subscription) (*Update, string) {
	if !sub.IsActivated() || sub.SubscriptionID != "" {
		return nil, ""
	}
	return &Update{
		Expect: Expect{Activated: ptr(true), SubscriptionID: ptr("")},
		Unset:  []Field{FieldActivatedAt, FieldTrialEndsAt},
	}, "activation_unsubmitted"
}

// unapproved compares local markers against the gateway's active subscription.
func (g *Guard) unapproved(sub *Subscription, active *ActiveSubscription) (*Update, string) {
	activeID := ""
	if active != nil {
		activeID = active.ID
	}

	if sub.PendingPlan != "" && sub.SubscriptionID != activeID {
		u := &Update{
			Expect:            Expect{PendingPlan: ptr(sub.PendingPlan), SubscriptionID: ptr(sub.SubscriptionID)},
			PendingActivation: ptr(false),
			Unset:             []Field{FieldPendingPlan},
		}
		if activeID != "" {
			u.SubscriptionID = ptr(activeID)
		} else {
			u.Unset = append(u.Unset, FieldSubscriptionID)
		}
		return u, "pending_unapproved"
	}

	if sub.IsActivated() && sub.SubscriptionID != "" && sub.SubscriptionID != activeID {
		return &Update{
			Expect: Expect{Activated: ptr(true), SubscriptionID: ptr(sub.SubscriptionID)},
			Unset:  []Field{FieldActivatedAt, FieldTrialEndsAt, FieldSubscriptionID},
		}, "activation_unapproved"
	}

	return nil, ""
}

func ptr[T any](v T) *T { return &v }

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*Info, error) { return nil, ErrCacheMiss }
func (nopCache) Set(context.Context, string, *Info) error   { return nil }
func (nopCache) Invalidate(context.Context, string) error   { return nil }
