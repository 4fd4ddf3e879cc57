// Package plansource provides billing.CatalogSource implementations: the
// built-in catalog and a YAML file that overrides it per deployment.
package plansource
