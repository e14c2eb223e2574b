// Package geo decides whether a listing's free-text location falls inside
// one of the configured target regions.
package geo

import (
	"strconv"
	"strings"

	"immojagd/models"
	"immojagd/normalize"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Reason     string
	PostalCode string
	Locality   string
}

// RegionRules holds the admission data for one region: postal-code ranges
// plus locality allow/deny lists. Deny entries win over everything.
type RegionRules struct {
	PostalRanges []PostalRange `yaml:"postal_ranges"`
	Localities   []string      `yaml:"localities"`
	Denied       []string      `yaml:"denied"`
}

type PostalRange struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Filter performs region admission checks against maintained locality and
// postal-code lists.
type Filter struct {
	rules map[models.Region]RegionRules
}

// NewFilter builds a filter from per-region rules; nil falls back to the
// compiled-in defaults for Wien and Niederösterreich.
func NewFilter(rules map[models.Region]RegionRules) *Filter {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Filter{rules: rules}
}

// Admit checks one location string against one region. Called once per
// accepted candidate, after classification and before persistence.
func (f *Filter) Admit(location string, region models.Region) Decision {
	rules, ok := f.rules[region]
	if !ok {
		return Decision{Allowed: false, Reason: "region not targeted: " + string(region)}
	}

	loc := strings.ToLower(normalize.Whitespace(location))
	postal := normalize.PostalCode(location)

	for _, denied := range rules.Denied {
		if strings.Contains(loc, strings.ToLower(denied)) {
			return Decision{
				Allowed:    false,
				Reason:     "denied locality: " + denied,
				PostalCode: postal,
				Locality:   denied,
			}
		}
	}

	if postal != "" {
		code, _ := strconv.Atoi(postal)
		for _, r := range rules.PostalRanges {
			if code >= r.From && code <= r.To {
				return Decision{
					Allowed:    true,
					Reason:     "postal code " + postal + " in range",
					PostalCode: postal,
				}
			}
		}
	}

	for _, locality := range rules.Localities {
		if strings.Contains(loc, strings.ToLower(locality)) {
			return Decision{
				Allowed:    true,
				Reason:     "locality match: " + locality,
				PostalCode: postal,
				Locality:   locality,
			}
		}
	}

	reason := "no locality match"
	if postal != "" {
		reason = "postal code " + postal + " outside target ranges"
	}
	return Decision{Allowed: false, Reason: reason, PostalCode: postal}
}
