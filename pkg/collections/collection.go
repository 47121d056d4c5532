// Package collections declares the live collections the console shows.
//
// Each collection binds a record type to its key, merge, snapshot query,
// notification parsers, filter categories, poll policy and bulk actions.
// Opening one yields a Handle: a type-erased view that a CLI or TUI can
// drive without knowing the record type.
package collections

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/grovetools/cryoview/config"
	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/notify"
	"github.com/grovetools/cryoview/pkg/view"
)

// bulkConcurrency bounds the backend calls one bulk action runs at once.
const bulkConcurrency = 4

// Deps are the collaborators shared by every opened collection.
type Deps struct {
	Client    *api.Client
	Channel   notify.Channel
	Validator *notify.Validator
	Metrics   *live.Metrics
	Logger    *logrus.Entry
	Views     config.ViewsConfig
}

// Collection is a named call site.
type Collection interface {
	Name() string
	Description() string
	// Scoped collections need a target JVM id to open.
	Scoped() bool
	Categories() []string
	Actions() []string
	Open(deps Deps, scope string, filters filter.PredicateSet) (Handle, error)
}

// Row is one rendered record.
type Row struct {
	Key      string
	Cells    []string
	Selected bool
}

// Table is a rendered view snapshot.
type Table struct {
	Collection string
	Scope      string
	Columns    []string
	Rows       []Row
	// Records holds the visible records, index for index with Rows.
	Records []interface{}
	// ParentColumns and Parents are set for parent/child collections.
	ParentColumns []string
	Parents       []Row
	Aggregate     live.Aggregate
	Err           error
	Loading       bool
	Loaded        bool
	Polling       bool
	Version       uint64
	Selected      []string
	Filters       filter.PredicateSet
	Category      string
	Search        string
}

// Handle drives an opened collection. See view.View for the semantics of
// each method.
type Handle interface {
	Name() string
	Scope() string
	Start(ctx context.Context) error
	Stop()
	Current() Table
	WaitLoaded(ctx context.Context) (Table, error)
	OnChange(fn func(Table)) (cancel func())
	Refresh()
	ToggleSelection(key string)
	SelectAll()
	ClearSelection()
	BulkAction(ctx context.Context, action string, keys []string) error
	SetFilters(set filter.PredicateSet)
	AddFilter(category, value string) error
	RemoveFilter(category, value string)
	ClearFilters()
	SelectCategory(name string) error
	Search(text string)
	Categories() []string
	Actions() []string
}

// RecordAction mutates one record on the backend.
type RecordAction[R any] func(ctx context.Context, c *api.Client, scope string, r R) error

// site is the generic implementation of Collection.
type site[R any] struct {
	name        string
	description string
	scoped      bool
	columns     []string
	cells       func(R) []string
	adapter     live.Adapter[R]
	query       func(c *api.Client) loader.Query[R]
	parsers     func(scope string) map[string]notify.Parser[R]
	categories  []filter.Category[R]
	transient   func(R) bool
	actions     map[string]RecordAction[R]
	// parentColumns is set for parent/child collections.
	parentColumns []string
}

func (s *site[R]) Name() string        { return s.name }
func (s *site[R]) Description() string { return s.description }
func (s *site[R]) Scoped() bool        { return s.scoped }

func (s *site[R]) Categories() []string {
	out := make([]string, len(s.categories))
	for i, c := range s.categories {
		out[i] = c.Name
	}
	return out
}

func (s *site[R]) Actions() []string {
	out := make([]string, 0, len(s.actions))
	for name := range s.actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open builds a stopped view of the collection. A nil filters argument
// falls back to the configured defaults for the collection.
func (s *site[R]) Open(deps Deps, scope string, filters filter.PredicateSet) (Handle, error) {
	if s.scoped && scope == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("collection %s needs a target", s.name))
	}
	if deps.Client == nil || deps.Channel == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "collection needs a client and a notification channel")
	}
	if filters == nil {
		filters = filter.PredicateSet(deps.Views.Filters[s.name])
	}

	h := &handle[R]{site: s, client: deps.Client, scope: scope}
	actions := make(map[string]view.Action, len(s.actions))
	for name, act := range s.actions {
		actions[name] = h.bulk(act)
	}

	v, err := view.New(view.Config[R]{
		Name:       s.name,
		Scope:      scope,
		Adapter:    s.adapter,
		Query:      s.query(deps.Client.WithoutRetries()),
		Channel:    deps.Channel,
		Parsers:    s.parsers(scope),
		Validator:  deps.Validator,
		Categories: s.categories,
		Filters:    filters,
		Poll: loader.PollPolicy[R]{
			Interval:  config.Duration(deps.Views.PollInterval, config.DefaultPollInterval),
			Transient: s.transient,
		},
		Actions:         actions,
		BufferLimit:     deps.Views.BufferLimit,
		RefreshInterval: config.Duration(deps.Views.RefreshInterval, config.DefaultRefreshInterval),
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
	})
	if err != nil {
		return nil, err
	}
	h.view = v
	return h, nil
}

type handle[R any] struct {
	site   *site[R]
	client *api.Client
	scope  string
	view   *view.View[R]
}

// bulk fans a record action out over the selected keys. Keys that vanished
// since selection are skipped.
func (h *handle[R]) bulk(act RecordAction[R]) view.Action {
	return func(ctx context.Context, keys []string) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bulkConcurrency)
		for _, key := range keys {
			rec, ok := h.view.Get(key)
			if !ok {
				continue
			}
			g.Go(func() error {
				if err := act(gctx, h.client, h.scope, rec); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
				return nil
			})
		}
		return g.Wait()
	}
}

func (h *handle[R]) table(s view.Snapshot[R]) Table {
	selected := make(map[string]bool, len(s.Selected))
	for _, k := range s.Selected {
		selected[k] = true
	}
	t := Table{
		Collection: h.site.name,
		Scope:      h.scope,
		Columns:    h.site.columns,
		Rows:       make([]Row, len(s.Visible)),
		Records:    make([]interface{}, len(s.Visible)),
		Aggregate:  s.Aggregate,
		Err:        s.Err,
		Loading:    s.Loading,
		Loaded:     s.Loaded,
		Polling:    s.Polling,
		Version:    s.Version,
		Selected:   s.Selected,
		Filters:    s.Filters,
		Category:   s.Category,
		Search:     s.Search,
	}
	for i, r := range s.Visible {
		t.Rows[i] = Row{Key: s.Keys[i], Cells: h.site.cells(r), Selected: selected[s.Keys[i]]}
		t.Records[i] = r
	}
	if h.site.parentColumns != nil {
		t.ParentColumns = h.site.parentColumns
		t.Parents = make([]Row, len(s.Parents))
		for i, p := range s.Parents {
			t.Parents[i] = Row{Key: p.Key, Cells: []string{p.Key, strconv.Itoa(p.Count)}}
		}
	}
	return t
}

func (h *handle[R]) Name() string                    { return h.site.name }
func (h *handle[R]) Scope() string                   { return h.scope }
func (h *handle[R]) Start(ctx context.Context) error { return h.view.Start(ctx) }
func (h *handle[R]) Stop()                           { h.view.Stop() }
func (h *handle[R]) Current() Table                  { return h.table(h.view.Current()) }

func (h *handle[R]) WaitLoaded(ctx context.Context) (Table, error) {
	s, err := h.view.WaitLoaded(ctx)
	return h.table(s), err
}

func (h *handle[R]) OnChange(fn func(Table)) func() {
	return h.view.OnChange(func(s view.Snapshot[R]) { fn(h.table(s)) })
}

func (h *handle[R]) Refresh()                   { h.view.Refresh() }
func (h *handle[R]) ToggleSelection(key string) { h.view.ToggleSelection(key) }
func (h *handle[R]) SelectAll()                 { h.view.SelectAll() }
func (h *handle[R]) ClearSelection()            { h.view.ClearSelection() }

func (h *handle[R]) BulkAction(ctx context.Context, action string, keys []string) error {
	return h.view.BulkAction(ctx, action, keys)
}

func (h *handle[R]) SetFilters(set filter.PredicateSet)     { h.view.SetFilters(set) }
func (h *handle[R]) AddFilter(category, value string) error { return h.view.AddFilter(category, value) }
func (h *handle[R]) RemoveFilter(category, value string)    { h.view.RemoveFilter(category, value) }
func (h *handle[R]) ClearFilters()                          { h.view.ClearFilters() }
func (h *handle[R]) SelectCategory(name string) error       { return h.view.SelectCategory(name) }
func (h *handle[R]) Search(text string)                     { h.view.Search(text) }
func (h *handle[R]) Categories() []string                   { return h.view.Categories() }
func (h *handle[R]) Actions() []string                      { return h.view.Actions() }
