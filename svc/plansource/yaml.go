package plansource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rankfoundry/shopseo/pkg/billing"
)

type fileCatalog struct {
	TrialDays     *int       `yaml:"trialDays"`
	TokenFeatures []string   `yaml:"tokenFeatures"`
	Plans         []filePlan `yaml:"plans"`
}

type filePlan struct {
	Key            string           `yaml:"key"`
	Name           string           `yaml:"name"`
	Price          string           `yaml:"price"`
	Currency       string           `yaml:"currency"`
	Interval       string           `yaml:"interval"`
	IncludedTokens int64            `yaml:"includedTokens"`
	Limits         map[string]int64 `yaml:"limits"`
	Features       []string         `yaml:"features"`
}

// YAMLFile reads the catalog from a YAML document on every Load.
//
//	trialDays: 5
//	tokenFeatures: [ai_meta_generation]
//	plans:
//	  - key: starter
//	    name: Starter
//	    price: "9.99"
//	    currency: USD
//	    features: [seo_audit]
type YAMLFile struct {
	path string
}

var _ billing.CatalogSource = (*YAMLFile)(nil)

func NewYAMLFile(path string) *YAMLFile {
	return &YAMLFile{path: path}
}

func (f *YAMLFile) Load(_ context.Context) (*billing.Catalog, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Join(billing.ErrFailedLoadPlans, err)
	}
	return ParseYAML(raw)
}

// ParseYAML decodes a catalog document. Unknown keys are rejected.
func ParseYAML(raw []byte) (*billing.Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc fileCatalog
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(billing.ErrFailedLoadPlans, err)
	}

	plans := make([]billing.Plan, 0, len(doc.Plans))
	for _, p := range doc.Plans {
		currency := p.Currency
		if currency == "" {
			currency = "USD"
		}
		price, err := billing.NewMoney(p.Price, currency)
		if err != nil {
			return nil, fmt.Errorf("%w: plan %q: %w", billing.ErrInvalidCatalog, p.Key, err)
		}
		plans = append(plans, billing.Plan{
			Key:            p.Key,
			Name:           p.Name,
			Price:          price,
			Interval:       billing.Interval(p.Interval),
			IncludedTokens: p.IncludedTokens,
			Limits:         p.Limits,
			Features:       p.Features,
		})
	}

	trialDays := billing.DefaultTrialDays
	if doc.TrialDays != nil {
		trialDays = *doc.TrialDays
	}
	return billing.NewCatalog(plans,
		billing.WithTrialDays(trialDays),
		billing.WithTokenFeatures(doc.TokenFeatures...),
	)
}
