package filter

import (
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cryoview/errors"
)

// Category is one filterable dimension of a record.
type Category[R any] struct {
	Name  string
	Match Matcher[R]
	// Search matches free text typed while this category is selected.
	// Defaults to Match.
	Search Matcher[R]
}

type memo[R any] struct {
	valid       bool
	version     uint64
	fingerprint string
	selected    string
	search      string
	result      []R
}

// Projector computes visible records. It holds the selected category and
// search text, and memoizes the last projection. Not safe for concurrent use.
type Projector[R any] struct {
	categories map[string]Category[R]
	order      []string
	logger     *logrus.Entry

	selected string
	search   string
	memo     memo[R]
}

// NewProjector creates a projector over categories. The first category is
// selected initially. A nil logger discards.
func NewProjector[R any](categories []Category[R], logger *logrus.Entry) *Projector[R] {
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(l)
	}
	p := &Projector[R]{
		categories: make(map[string]Category[R], len(categories)),
		logger:     logger,
	}
	for _, c := range categories {
		if c.Search == nil {
			c.Search = c.Match
		}
		p.categories[c.Name] = c
		p.order = append(p.order, c.Name)
	}
	if len(p.order) > 0 {
		p.selected = p.order[0]
	}
	return p
}

// Categories lists category names in declaration order.
func (p *Projector[R]) Categories() []string {
	return append([]string(nil), p.order...)
}

// Has reports whether name is a known category.
func (p *Projector[R]) Has(name string) bool {
	_, ok := p.categories[name]
	return ok
}

// Select makes name the category that receives free-text search. The
// search text is cleared.
func (p *Projector[R]) Select(name string) error {
	if !p.Has(name) {
		return errors.UnknownCategory(name)
	}
	if p.selected != name {
		p.selected = name
		p.search = ""
	}
	return nil
}

func (p *Projector[R]) Selected() string { return p.selected }

// Search sets the free-text query for the selected category.
func (p *Projector[R]) Search(text string) { p.search = text }

func (p *Projector[R]) SearchText() string { return p.search }

// Matches reports whether r passes every non-empty category of set and the
// current search.
func (p *Projector[R]) Matches(r R, set PredicateSet) bool {
	for name, values := range set {
		if len(values) == 0 {
			continue
		}
		cat, ok := p.categories[name]
		if !ok {
			continue
		}
		matched := false
		for _, v := range values {
			if cat.Match(r, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if p.search != "" {
		if cat, ok := p.categories[p.selected]; ok && !cat.Search(r, p.search) {
			return false
		}
	}
	return true
}

// Project returns the records of items that pass set and the search, in
// input order. items must be the state at version; the result is reused
// while version, set and search are unchanged and must not be modified.
func (p *Projector[R]) Project(items []R, version uint64, set PredicateSet) []R {
	fp := set.Fingerprint()
	m := p.memo
	if m.valid && m.version == version && m.fingerprint == fp && m.selected == p.selected && m.search == p.search {
		return m.result
	}

	for name, values := range set {
		if len(values) > 0 && !p.Has(name) {
			p.logger.WithField("category", name).Debug("Ignoring unknown filter category")
		}
	}

	out := make([]R, 0, len(items))
	for _, r := range items {
		if p.Matches(r, set) {
			out = append(out, r)
		}
	}
	p.memo = memo[R]{valid: true, version: version, fingerprint: fp, selected: p.selected, search: p.search, result: out}
	return out
}

// Invalidate drops the memoized projection.
func (p *Projector[R]) Invalidate() { p.memo = memo[R]{} }
