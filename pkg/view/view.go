// Package view binds a live collection to a presentation layer.
//
// A View owns one Reconciler, one snapshot Loader and one notification
// Demux. All state changes happen on a single loop goroutine; readers get
// immutable Snapshots. Change callbacks run on the loop goroutine too, so
// none can fire after Stop returns.
package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/notify"
)

// Action is a backend mutation applied to the records with the given keys.
// Its effect reaches the view through notifications, never directly.
type Action func(ctx context.Context, keys []string) error

// Config wires a View to its collaborators.
type Config[R any] struct {
	// Name identifies the collection in logs, metrics and errors.
	Name string
	// Scope is passed to Query, typically a target JVM id.
	Scope   string
	Adapter live.Adapter[R]
	Query   loader.Query[R]
	Channel notify.Channel
	Parsers map[string]notify.Parser[R]

	Validator  *notify.Validator
	Categories []filter.Category[R]
	Filters    filter.PredicateSet
	Poll       loader.PollPolicy[R]
	Actions    map[string]Action

	BufferLimit     int
	RefreshInterval time.Duration
	Logger          *logrus.Entry
	Metrics         *live.Metrics
}

// Snapshot is what the presentation layer renders.
type Snapshot[R any] struct {
	Visible []R
	// Keys holds the key of each Visible record, index for index.
	Keys      []string
	Aggregate live.Aggregate
	Parents   []live.ParentRow
	// Err is the last load failure, cleared by the next successful load.
	Err     error
	Loading bool
	// Loaded is set once the first snapshot has been applied.
	Loaded   bool
	Version  uint64
	Selected []string
	Filters  filter.PredicateSet
	Category string
	Search   string
	Polling  bool
}

// View is a live, filtered collection.
type View[R any] struct {
	cfg    Config[R]
	logger *logrus.Entry
	rec    *live.Reconciler[R]
	proj   *filter.Projector[R]
	loader *loader.Loader[R]
	demux  *notify.Demux[R]

	cmds chan func()
	done chan struct{}

	mu      sync.RWMutex
	snap    Snapshot[R]
	started bool
	stopped bool
	cancel  context.CancelFunc

	lmu          sync.Mutex
	listeners    map[int]func(Snapshot[R])
	nextListener int

	// Owned by the loop goroutine.
	ctx          context.Context
	filters      filter.PredicateSet
	selection    map[string]struct{}
	err          error
	loaded       bool
	pollTimer    *time.Timer
	refreshTimer *time.Timer
}

// New validates cfg and builds a stopped view.
func New[R any](cfg Config[R]) (*View[R], error) {
	if cfg.Adapter.Key == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "view adapter has no key function")
	}
	if cfg.Query == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "view has no query")
	}
	if cfg.Channel == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "view has no notification channel")
	}
	logger := cfg.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(l)
	}
	logger = logger.WithFields(logrus.Fields{"view": cfg.Name, "scope": cfg.Scope})

	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = loader.DefaultRefreshInterval
	}
	filters := cfg.Filters.Clone()
	v := &View[R]{
		cfg:    cfg,
		logger: logger,
		rec: live.NewReconciler(cfg.Adapter,
			live.WithLogger(logger),
			live.WithMetrics(cfg.Metrics),
			live.WithBufferLimit(cfg.BufferLimit),
			live.WithCollection(cfg.Name),
		),
		proj: filter.NewProjector(cfg.Categories, logger),
		loader: loader.New(cfg.Query,
			loader.WithLogger(logger),
			loader.WithRefreshInterval(refresh),
		),
		demux: notify.NewDemux(cfg.Channel, cfg.Parsers,
			notify.WithValidator(cfg.Validator),
			notify.WithLogger(logger),
			notify.WithMetrics(cfg.Metrics),
		),
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		listeners: make(map[int]func(Snapshot[R])),
		filters:   filters,
		selection: make(map[string]struct{}),
	}
	v.snap = Snapshot[R]{Filters: filters.Clone(), Category: v.proj.Selected()}
	return v, nil
}

// Name returns the collection name.
func (v *View[R]) Name() string { return v.cfg.Name }

// Scope returns the query scope.
func (v *View[R]) Scope() string { return v.cfg.Scope }

// Categories lists filter categories in declaration order.
func (v *View[R]) Categories() []string { return v.proj.Categories() }

// Actions lists the bulk actions the view offers, sorted.
func (v *View[R]) Actions() []string {
	out := make([]string, 0, len(v.cfg.Actions))
	for name := range v.cfg.Actions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start subscribes to notifications and triggers the first load. Calling it
// again is a no-op. A stopped view cannot be restarted.
func (v *View[R]) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return errors.New(errors.ErrCodeViewStopped, "view was stopped").WithDetail("view", v.cfg.Name)
	}
	if v.started {
		v.mu.Unlock()
		return nil
	}
	v.started = true
	ctx, v.cancel = context.WithCancel(ctx)
	v.ctx = ctx
	v.mu.Unlock()

	v.demux.Start(ctx)
	go v.run(ctx)
	v.logger.Debug("View started")
	return nil
}

// Stop unsubscribes, cancels pending loads and timers, waits for the loop
// and discards all state. It is idempotent.
func (v *View[R]) Stop() {
	v.mu.Lock()
	if v.stopped {
		v.mu.Unlock()
		return
	}
	v.stopped = true
	started := v.started
	cancel := v.cancel
	v.mu.Unlock()

	if started {
		cancel()
		<-v.done
	}
	v.loader.Close()
	v.demux.Stop()
	v.rec.Reset()

	v.lmu.Lock()
	v.listeners = make(map[int]func(Snapshot[R]))
	v.lmu.Unlock()

	v.mu.Lock()
	v.snap = Snapshot[R]{}
	v.mu.Unlock()
	v.logger.Debug("View stopped")
}

// Current returns the latest snapshot.
func (v *View[R]) Current() Snapshot[R] {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// OnChange registers fn to be called on the loop goroutine after every
// published change. fn must not block. The returned function unregisters it.
func (v *View[R]) OnChange(fn func(Snapshot[R])) (cancel func()) {
	v.lmu.Lock()
	id := v.nextListener
	v.nextListener++
	v.listeners[id] = fn
	v.lmu.Unlock()
	return func() {
		v.lmu.Lock()
		delete(v.listeners, id)
		v.lmu.Unlock()
	}
}

// WaitLoaded blocks until the first load succeeds or fails.
func (v *View[R]) WaitLoaded(ctx context.Context) (Snapshot[R], error) {
	ch := make(chan Snapshot[R], 1)
	cancel := v.OnChange(func(s Snapshot[R]) {
		if s.Loaded || (s.Err != nil && !s.Loading) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer cancel()

	if s := v.Current(); s.Loaded || (s.Err != nil && !s.Loading) {
		return s, s.Err
	}
	select {
	case s := <-ch:
		return s, s.Err
	case <-v.done:
		return v.Current(), errors.New(errors.ErrCodeViewStopped, "view stopped before loading")
	case <-ctx.Done():
		return v.Current(), ctx.Err()
	}
}

// Get returns the cached record for key, visible or not.
func (v *View[R]) Get(key string) (R, bool) {
	var (
		rec R
		ok  bool
	)
	v.do(func() { rec, ok = v.rec.State().Get(key) })
	return rec, ok
}

// do runs fn on the loop goroutine and waits for it. It reports false when
// the view is not running.
func (v *View[R]) do(fn func()) bool {
	v.mu.RLock()
	running := v.started && !v.stopped
	v.mu.RUnlock()
	if !running {
		return false
	}
	finished := make(chan struct{})
	select {
	case v.cmds <- func() { fn(); close(finished) }:
	case <-v.done:
		return false
	}
	select {
	case <-finished:
		return true
	case <-v.done:
		return false
	}
}

// Refresh requests a new snapshot. Refreshes closer together than the
// configured interval are delayed, and a pending delayed refresh absorbs
// further requests.
func (v *View[R]) Refresh() {
	v.do(func() {
		if v.refreshTimer != nil {
			return
		}
		delay := v.loader.RefreshDelay()
		if delay <= 0 {
			v.load("refresh")
			return
		}
		v.refreshTimer = time.NewTimer(delay)
	})
}

// ToggleSelection selects or deselects key. Unknown keys are ignored.
func (v *View[R]) ToggleSelection(key string) {
	v.do(func() {
		if _, ok := v.selection[key]; ok {
			delete(v.selection, key)
		} else if v.rec.State().Has(key) {
			v.selection[key] = struct{}{}
		} else {
			return
		}
		v.publish()
	})
}

// SelectAll selects every visible record.
func (v *View[R]) SelectAll() {
	v.do(func() {
		for _, k := range v.Current().Keys {
			v.selection[k] = struct{}{}
		}
		v.publish()
	})
}

func (v *View[R]) ClearSelection() {
	v.do(func() {
		v.selection = make(map[string]struct{})
		v.publish()
	})
}

// BulkAction runs the named action on keys, or on the current selection
// when keys is nil. Selected keys it was applied to are deselected on success.
func (v *View[R]) BulkAction(ctx context.Context, action string, keys []string) error {
	act, ok := v.cfg.Actions[action]
	if !ok {
		return errors.UnknownAction(v.cfg.Name, action)
	}
	if keys == nil {
		keys = v.Current().Selected
	}
	if len(keys) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "no items selected")
	}

	v.logger.WithFields(logrus.Fields{"action": action, "count": len(keys)}).Info("Running bulk action")
	if err := act(ctx, keys); err != nil {
		return err
	}
	v.do(func() {
		for _, k := range keys {
			delete(v.selection, k)
		}
		v.publish()
	})
	return nil
}

// SetFilters replaces the predicate set.
func (v *View[R]) SetFilters(set filter.PredicateSet) {
	v.do(func() {
		v.filters = set.Clone()
		v.publish()
	})
}

// AddFilter adds one chip. Unknown categories are rejected.
func (v *View[R]) AddFilter(category, value string) error {
	if !v.proj.Has(category) {
		return errors.UnknownCategory(category)
	}
	v.do(func() {
		v.filters = v.filters.With(category, value)
		v.publish()
	})
	return nil
}

func (v *View[R]) RemoveFilter(category, value string) {
	v.do(func() {
		v.filters = v.filters.Without(category, value)
		v.publish()
	})
}

func (v *View[R]) ClearFilters() {
	v.do(func() {
		v.filters = filter.PredicateSet{}
		v.publish()
	})
}

// SelectCategory chooses the category that receives free-text search.
func (v *View[R]) SelectCategory(name string) error {
	if !v.proj.Has(name) {
		return errors.UnknownCategory(name)
	}
	v.do(func() {
		_ = v.proj.Select(name)
		v.publish()
	})
	return nil
}

// Search sets the free-text query for the selected category.
func (v *View[R]) Search(text string) {
	v.do(func() {
		v.proj.Search(text)
		v.publish()
	})
}

func (v *View[R]) run(ctx context.Context) {
	defer close(v.done)
	defer v.stopTimers()

	events := v.demux.Events()
	results := v.loader.Results()
	resync := v.demux.Resync()
	v.load("start")

	for {
		var pollC, refreshC <-chan time.Time
		if v.pollTimer != nil {
			pollC = v.pollTimer.C
		}
		if v.refreshTimer != nil {
			refreshC = v.refreshTimer.C
		}

		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if v.rec.Apply(ev) {
				v.publish()
			}
		case res := <-results:
			v.complete(res)
		case <-resync:
			v.logger.Info("Notification channel reconnected, reloading")
			v.load("resync")
		case <-pollC:
			v.pollTimer = nil
			v.load("poll")
		case <-refreshC:
			v.refreshTimer = nil
			v.load("refresh")
		case fn := <-v.cmds:
			fn()
		}
	}
}

func (v *View[R]) load(reason string) {
	ticket := v.rec.BeginLoad()
	v.logger.WithFields(logrus.Fields{"ticket": ticket, "reason": reason}).Debug("Loading snapshot")
	v.loader.Load(v.ctx, v.cfg.Scope, ticket)
	v.publish()
}

func (v *View[R]) complete(res loader.Result[R]) {
	if res.Err != nil {
		if !v.rec.FailLoad(res.Ticket) {
			return
		}
		v.err = res.Err
		v.publish()
		return
	}

	switch v.rec.CompleteLoad(res.Ticket, res.Snapshot) {
	case live.LoadStale:
		return
	case live.LoadOverflowed:
		v.err = nil
		v.loaded = true
		v.load("overflow")
		return
	}
	v.err = nil
	v.loaded = true
	v.publish()
}

// publish rebuilds the snapshot, schedules polling and notifies listeners.
func (v *View[R]) publish() {
	state := v.rec.State()
	for k := range v.selection {
		if !state.Has(k) {
			delete(v.selection, k)
		}
	}

	items := state.Items()
	visible := v.proj.Project(items, state.Version(), v.filters)
	keys := make([]string, len(visible))
	for i, r := range visible {
		keys[i] = v.cfg.Adapter.Key(r)
	}
	selected := make([]string, 0, len(v.selection))
	for k := range v.selection {
		selected = append(selected, k)
	}
	sort.Strings(selected)

	polling := v.updatePolling(items)

	snap := Snapshot[R]{
		Visible:   append([]R(nil), visible...),
		Keys:      keys,
		Aggregate: state.Aggregate(),
		Parents:   state.Parents(),
		Err:       v.err,
		Loading:   v.rec.Loading(),
		Loaded:    v.loaded,
		Version:   state.Version(),
		Selected:  selected,
		Filters:   v.filters.Clone(),
		Category:  v.proj.Selected(),
		Search:    v.proj.SearchText(),
		Polling:   polling,
	}

	v.mu.Lock()
	v.snap = snap
	v.mu.Unlock()

	v.lmu.Lock()
	listeners := make([]func(Snapshot[R]), 0, len(v.listeners))
	for _, fn := range v.listeners {
		listeners = append(listeners, fn)
	}
	v.lmu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// updatePolling arms the poll timer while items contain transient state and
// no load is outstanding.
func (v *View[R]) updatePolling(items []R) bool {
	active := v.cfg.Poll.Active(items)
	if !active {
		if v.pollTimer != nil {
			v.pollTimer.Stop()
			v.pollTimer = nil
		}
		return false
	}
	if v.pollTimer == nil && !v.rec.Loading() {
		v.pollTimer = time.NewTimer(v.cfg.Poll.Every())
	}
	return true
}

func (v *View[R]) stopTimers() {
	if v.pollTimer != nil {
		v.pollTimer.Stop()
		v.pollTimer = nil
	}
	if v.refreshTimer != nil {
		v.refreshTimer.Stop()
		v.refreshTimer = nil
	}
}
