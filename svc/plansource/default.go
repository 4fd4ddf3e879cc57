package plansource

import (
	"context"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

// Features offered by the app.
const (
	FeatureSEOAudit        = "seo_audit"
	FeatureMetaTags        = "meta_tags"
	FeatureSitemap         = "sitemap"
	FeatureKeywordTracking = "keyword_tracking"
	FeatureBulkEdit        = "bulk_edit"
	FeatureAIMeta          = "ai_meta_generation"
	FeatureAIAltText       = "ai_alt_text"
)

// TokenFeatures are paid for with tokens and unavailable during an
// unactivated trial.
var TokenFeatures = []string{FeatureAIMeta, FeatureAIAltText}

// Static serves a fixed plan list.
type Static struct {
	plans         []billing.Plan
	trialDays     int
	tokenFeatures []string
}

var _ billing.CatalogSource = (*Static)(nil)

// NewStatic copies plans so later changes by the caller do not leak in.
func NewStatic(trialDays int, tokenFeatures []string, plans ...billing.Plan) *Static {
	cp := make([]billing.Plan, len(plans))
	for i, p := range plans {
		p.Limits = maps.Clone(p.Limits)
		p.Features = slices.Clone(p.Features)
		cp[i] = p
	}
	return &Static{plans: cp, trialDays: trialDays, tokenFeatures: slices.Clone(tokenFeatures)}
}

func (s *Static) Load(context.Context) (*billing.Catalog, error) {
	return billing.NewCatalog(s.plans,
		billing.WithTrialDays(s.trialDays),
		billing.WithTokenFeatures(s.tokenFeatures...),
	)
}

func usd(amount string) billing.Money {
	return billing.USD(decimal.RequireFromString(amount))
}

// NewDefault returns the built-in catalog.
func NewDefault() *Static {
	base := []string{FeatureSEOAudit, FeatureMetaTags, FeatureSitemap}
	return NewStatic(billing.DefaultTrialDays, TokenFeatures,
		billing.Plan{
			Key:      "starter",
			Name:     "Starter",
			Price:    usd("9.99"),
			Interval: billing.IntervalEvery30Days,
			Limits:   map[string]int64{"products": 250, "keywords": 25},
			Features: base,
		},
		billing.Plan{
			Key:      "growth",
			Name:     "Growth",
			Price:    usd("29.99"),
			Interval: billing.IntervalEvery30Days,
			Limits:   map[string]int64{"products": 2_500, "keywords": 250},
			Features: append(slices.Clone(base), FeatureKeywordTracking, FeatureAIMeta),
		},
		billing.Plan{
			Key:      "pro",
			Name:     "Pro",
			Price:    usd("79.99"),
			Interval: billing.IntervalEvery30Days,
			Limits:   map[string]int64{"products": 25_000, "keywords": 1_000},
			Features: append(slices.Clone(base), FeatureKeywordTracking, FeatureBulkEdit, FeatureAIMeta, FeatureAIAltText),
		},
		billing.Plan{
			Key:            "enterprise",
			Name:           "Enterprise",
			Price:          usd("299.00"),
			Interval:       billing.IntervalEvery30Days,
			IncludedTokens: 100_000_000,
			Limits:         map[string]int64{"products": 250_000, "keywords": 10_000},
			Features:       append(slices.Clone(base), FeatureKeywordTracking, FeatureBulkEdit, FeatureAIMeta, FeatureAIAltText),
		},
	)
}
