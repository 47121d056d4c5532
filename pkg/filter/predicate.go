// Package filter derives the visible subset of a collection from chip-style
// filter predicates and a free-text search on one selected category.
package filter

import (
	"sort"
	"strings"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/keys"
)

// PredicateSet maps a category name to its accepted values. A record is
// visible when it matches at least one value of every non-empty category.
type PredicateSet map[string][]string

// Clone returns a deep copy.
func (p PredicateSet) Clone() PredicateSet {
	out := make(PredicateSet, len(p))
	for cat, values := range p {
		out[cat] = append([]string(nil), values...)
	}
	return out
}

// Active reports whether any category constrains the result.
func (p PredicateSet) Active() bool {
	for _, values := range p {
		if len(values) > 0 {
			return true
		}
	}
	return false
}

// With returns a copy with value added to category. Duplicates are ignored.
func (p PredicateSet) With(category, value string) PredicateSet {
	out := p.Clone()
	for _, v := range out[category] {
		if v == value {
			return out
		}
	}
	out[category] = append(out[category], value)
	return out
}

// Without returns a copy with value removed from category.
func (p PredicateSet) Without(category, value string) PredicateSet {
	out := p.Clone()
	values := out[category][:0]
	for _, v := range out[category] {
		if v != value {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		delete(out, category)
	} else {
		out[category] = values
	}
	return out
}

// Fingerprint is an order-insensitive digest of the set, used as a memo key.
func (p PredicateSet) Fingerprint() string {
	cats := make([]string, 0, len(p))
	for cat, values := range p {
		if len(values) > 0 {
			cats = append(cats, cat)
		}
	}
	sort.Strings(cats)

	var parts []string
	for _, cat := range cats {
		values := append([]string(nil), p[cat]...)
		sort.Strings(values)
		parts = append(parts, cat)
		parts = append(parts, values...)
		parts = append(parts, "")
	}
	return keys.Hash(parts...)
}

// Parse builds a set from "Category=value" expressions, as given on the
// command line. Values may themselves contain '=' (label filters).
func Parse(exprs []string) (PredicateSet, error) {
	set := PredicateSet{}
	for _, expr := range exprs {
		cat, value, ok := strings.Cut(expr, "=")
		cat = strings.TrimSpace(cat)
		if !ok || cat == "" || value == "" {
			return nil, errors.New(errors.ErrCodeInvalidInput, "filter must be Category=value").
				WithDetail("filter", expr)
		}
		set = set.With(cat, value)
	}
	return set, nil
}
