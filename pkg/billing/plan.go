package billing

import (
	"context"
	"fmt"
	"slices"
)

// DefaultTrialDays is the trial length granted on first install.
const DefaultTrialDays = 5

// Interval is the recurring billing interval understood by the gateway.
type Interval string

const (
	IntervalEvery30Days Interval = "EVERY_30_DAYS"
	IntervalAnnual      Interval = "ANNUAL"
)

// Plan is an entry of the static plan catalog.
type Plan struct {
	Key            string
	Name           string
	Price          Money
	Interval       Interval
	IncludedTokens int64            // monthly included tokens, zero for most plans
	Limits         map[string]int64 // resource limits shown to the merchant
	Features       []string
}

// HasFeature reports whether the plan enables feature.
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// CatalogSource loads the plan catalog.
type CatalogSource interface {
	Load(ctx context.Context) (*Catalog, error)
}

// Catalog is the immutable plan table plus catalog-wide constants.
type Catalog struct {
	plans         map[string]Plan
	order         []string
	trialDays     int
	tokenFeatures []string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithTrialDays overrides DefaultTrialDays. Negative values are ignored.
func WithTrialDays(days int) CatalogOption {
	return func(c *Catalog) {
		if days >= 0 {
			c.trialDays = days
		}
	}
}

// WithTokenFeatures marks features that consume tokens and are blocked during trial.
func WithTokenFeatures(features ...string) CatalogOption {
	return func(c *Catalog) {
		c.tokenFeatures = append(c.tokenFeatures, features...)
	}
}

// NewCatalog validates plans and builds a Catalog preserving their order.
func NewCatalog(plans []Plan, opts ...CatalogOption) (*Catalog, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans", ErrInvalidCatalog)
	}

	c := &Catalog{
		plans:     make(map[string]Plan, len(plans)),
		order:     make([]string, 0, len(plans)),
		trialDays: DefaultTrialDays,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, p := range plans {
		if p.Key == "" || p.Name == "" {
			return nil, fmt.Errorf("%w: plan key and name are required", ErrInvalidCatalog)
		}
		if _, dup := c.plans[p.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidCatalog, p.Key)
		}
		if err := p.Price.Validate(); err != nil {
			return nil, fmt.Errorf("%w: plan %q: %w", ErrInvalidCatalog, p.Key, err)
		}
		if p.IncludedTokens < 0 {
			return nil, fmt.Errorf("%w: plan %q has negative included tokens", ErrInvalidCatalog, p.Key)
		}
		switch p.Interval {
		case "":
			p.Interval = IntervalEvery30Days
		case IntervalEvery30Days, IntervalAnnual:
		default:
			return nil, fmt.Errorf("%w: plan %q has unknown interval %q", ErrInvalidCatalog, p.Key, p.Interval)
		}
		c.plans[p.Key] = p
		c.order = append(c.order, p.Key)
	}

	return c, nil
}

// Plan looks up a plan by key.
func (c *Catalog) Plan(key string) (Plan, bool) {
	p, ok := c.plans[key]
	return p, ok
}

// Plans returns all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.plans[k])
	}
	return out
}

func (c *Catalog) TrialDays() int { return c.trialDays }

// IncludedTokens returns the monthly included tokens of plan, zero for unknown plans.
func (c *Catalog) IncludedTokens(plan string) int64 {
	return c.plans[plan].IncludedTokens
}

// ConsumesTokens reports whether feature is paid for with tokens.
func (c *Catalog) ConsumesTokens(feature string) bool {
	return slices.Contains(c.tokenFeatures, feature)
}
