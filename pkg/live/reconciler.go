// Package live maintains a deduplicated, continuously reconciled copy of a
// remote collection from an authoritative snapshot plus an at-least-once
// stream of create/update/delete events.
//
// A Reconciler is the single writer of its State. It is not safe for
// concurrent use: the owning view serializes every call on one goroutine.
package live

import (
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBufferLimit = 10000
	DefaultLedgerLimit = 4096
)

// Ticket identifies one snapshot request. Only the latest ticket may complete.
type Ticket uint64

// LoadOutcome reports what CompleteLoad did with a snapshot.
type LoadOutcome int

const (
	// LoadApplied means the snapshot replaced state and buffered events were replayed.
	LoadApplied LoadOutcome = iota
	// LoadStale means a newer request was issued; the snapshot was dropped.
	LoadStale
	// LoadOverflowed means the snapshot was applied but some events arriving
	// during the load could not be buffered. The caller should load again.
	LoadOverflowed
)

func (o LoadOutcome) String() string {
	switch o {
	case LoadApplied:
		return "applied"
	case LoadStale:
		return "stale"
	case LoadOverflowed:
		return "overflowed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

type options struct {
	logger      *logrus.Entry
	metrics     *Metrics
	bufferLimit int
	ledgerLimit int
	collection  string
}

// Option configures a Reconciler.
type Option func(*options)

func WithLogger(l *logrus.Entry) Option { return func(o *options) { o.logger = l } }

func WithMetrics(m *Metrics) Option { return func(o *options) { o.metrics = m } }

// WithBufferLimit bounds the number of events buffered during a snapshot load.
func WithBufferLimit(n int) Option { return func(o *options) { o.bufferLimit = n } }

// WithLedgerLimit bounds the duplicate-detection sets for uncached children.
func WithLedgerLimit(n int) Option { return func(o *options) { o.ledgerLimit = n } }

// WithCollection names the collection in logs and metrics.
func WithCollection(name string) Option { return func(o *options) { o.collection = name } }

// Reconciler applies snapshots and events to a State.
type Reconciler[R any] struct {
	adapter    Adapter[R]
	state      *State[R]
	logger     *logrus.Entry
	metrics    *Metrics
	collection string

	seq         Ticket
	loading     bool
	buffer      []Event[R]
	bufferLimit int
	overflowed  bool

	trackAll  bool
	ledger    *childLedger
	replaying bool
}

// NewReconciler creates a reconciler with empty state. adapter.Key is required.
func NewReconciler[R any](adapter Adapter[R], opts ...Option) *Reconciler[R] {
	if adapter.Key == nil {
		panic("live: Adapter.Key is required")
	}
	o := options{bufferLimit: DefaultBufferLimit, ledgerLimit: DefaultLedgerLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		o.logger = logrus.NewEntry(l)
	}
	if o.bufferLimit <= 0 {
		o.bufferLimit = DefaultBufferLimit
	}
	return &Reconciler[R]{
		adapter:     adapter,
		state:       newState[R](),
		logger:      o.logger.WithField("collection", o.collection),
		metrics:     o.metrics,
		collection:  o.collection,
		bufferLimit: o.bufferLimit,
		ledger:      newChildLedger(o.ledgerLimit),
	}
}

// State returns the canonical state. Callers must not retain it across
// goroutines; use its accessors to copy what they need.
func (r *Reconciler[R]) State() *State[R] { return r.state }

// Loading reports whether a snapshot request is outstanding.
func (r *Reconciler[R]) Loading() bool { return r.loading }

// Reset discards all state, pending loads and buffered events.
func (r *Reconciler[R]) Reset() {
	r.state = newState[R]()
	r.loading = false
	r.buffer = nil
	r.overflowed = false
	r.trackAll = false
	r.ledger.reset()
}

// Apply applies one event and reports whether state changed. While a load is
// outstanding the event is also buffered for replay over the snapshot.
func (r *Reconciler[R]) Apply(ev Event[R]) bool {
	if r.loading {
		if len(r.buffer) < r.bufferLimit {
			r.buffer = append(r.buffer, ev)
		} else if !r.overflowed {
			r.overflowed = true
			r.logger.WithField("limit", r.bufferLimit).Warn("Load buffer full, snapshot will be refetched")
		}
	}
	return r.apply(ev)
}

// BeginLoad issues a ticket for a new snapshot request. Events applied from
// now until the load completes or fails are buffered. A second BeginLoad
// while one is outstanding supersedes it but keeps the earlier buffer, since
// the newer snapshot may predate those events too.
func (r *Reconciler[R]) BeginLoad() Ticket {
	r.seq++
	if !r.loading {
		r.loading = true
		r.buffer = nil
		r.overflowed = false
	}
	return r.seq
}

// CompleteLoad replaces items with snap and replays buffered events, unless
// t is not the latest ticket.
func (r *Reconciler[R]) CompleteLoad(t Ticket, snap Snapshot[R]) LoadOutcome {
	if t != r.seq || !r.loading {
		r.logger.WithFields(logrus.Fields{"ticket": t, "latest": r.seq}).Debug("Dropping stale snapshot")
		r.metrics.load(r.collection, LoadStale.String())
		return LoadStale
	}

	records := make([]R, 0, len(snap.Records))
	for _, rec := range snap.Records {
		if _, ok := r.safeKey(rec); ok {
			records = append(records, rec)
		}
	}
	parents := make([]ParentRow, len(snap.Parents))
	for i, p := range snap.Parents {
		if snap.TrackAll {
			p.Tracked = true
		}
		parents[i] = p
	}

	r.state.replace(records, r.adapter.Key, parents)
	r.trackAll = snap.TrackAll
	r.ledger.reset()
	r.state.version++
	r.recompute()

	buffered, overflowed := r.buffer, r.overflowed
	r.buffer = nil
	r.overflowed = false
	r.loading = false

	// Untracked counts in the snapshot already reflect whatever the server
	// saw, so replay only records the buffered children in the ledger.
	r.replaying = true
	for _, ev := range buffered {
		r.apply(ev)
	}
	r.replaying = false
	r.metrics.replay(r.collection, len(buffered))

	outcome := LoadApplied
	if overflowed {
		outcome = LoadOverflowed
	}
	r.metrics.load(r.collection, outcome.String())
	r.logger.WithFields(logrus.Fields{
		"ticket":   t,
		"items":    r.state.Len(),
		"replayed": len(buffered),
	}).Debug("Snapshot applied")
	return outcome
}

// FailLoad ends the load for t without touching state. It reports false if t
// is not the outstanding ticket.
func (r *Reconciler[R]) FailLoad(t Ticket) bool {
	if t != r.seq || !r.loading {
		return false
	}
	r.loading = false
	r.buffer = nil
	r.overflowed = false
	r.metrics.load(r.collection, "failed")
	return true
}

func (r *Reconciler[R]) apply(ev Event[R]) (changed bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithFields(logrus.Fields{
				"kind":     ev.Kind,
				"category": ev.Category,
			}).Errorf("Event skipped after panic: %v", p)
			r.metrics.eventIgnored(r.collection, ev.Kind, "panic")
			changed = false
		}
	}()

	var reason string
	switch ev.Kind {
	case Created:
		changed, reason = r.applyCreated(ev)
	case Updated:
		changed, reason = r.applyUpdated(ev)
	case Deleted:
		changed, reason = r.applyDeleted(ev)
	case ParentAdded:
		changed, reason = r.applyParentAdded(ev)
	case ParentRemoved:
		changed, reason = r.applyParentRemoved(ev)
	case ParentCountDelta:
		changed, reason = r.applyParentDelta(ev)
	default:
		reason = "unknown_kind"
	}

	if !changed {
		r.logger.WithFields(logrus.Fields{
			"kind":     ev.Kind,
			"category": ev.Category,
			"reason":   reason,
		}).Debug("Event ignored")
		r.metrics.eventIgnored(r.collection, ev.Kind, reason)
		return false
	}

	r.state.version++
	r.recompute()
	r.metrics.eventApplied(r.collection, ev.Kind)
	return true
}

// route decides where a child event lands. cached is true when the record
// belongs in items; otherwise row is the untracked parent whose counter moves.
func (r *Reconciler[R]) route(ev Event[R]) (row ParentRow, cached bool, reason string) {
	if r.adapter.Parent == nil {
		return ParentRow{}, true, ""
	}
	parent := ev.ParentKey
	if parent == "" {
		parent = r.adapter.Parent(ev.Record)
	}
	row, ok := r.state.Parent(parent)
	if !ok {
		return ParentRow{}, false, "unknown_parent"
	}
	return row, row.Tracked, ""
}

func (r *Reconciler[R]) applyCreated(ev Event[R]) (bool, string) {
	key, ok := r.eventKey(ev)
	if !ok {
		return false, "missing_key"
	}
	row, cached, reason := r.route(ev)
	if reason != "" {
		return false, reason
	}
	if !cached {
		if !r.ledger.created(key) {
			return false, "duplicate"
		}
		if r.replaying {
			return false, "snapshot_count"
		}
		row.Count++
		r.state.putParent(row)
		return true, ""
	}

	current, present := r.state.Get(key)
	if !present {
		r.state.put(key, ev.Record)
		return true, ""
	}
	// A create for a known key is a duplicate delivery; treat it as an update.
	merged := r.merge(current, ev.Record, ev.Fields)
	if reflect.DeepEqual(merged, current) {
		return false, "duplicate"
	}
	r.state.put(key, merged)
	return true, ""
}

func (r *Reconciler[R]) applyUpdated(ev Event[R]) (bool, string) {
	key, ok := r.eventKey(ev)
	if !ok {
		return false, "missing_key"
	}
	current, present := r.state.Get(key)
	if !present {
		return false, "absent"
	}
	merged := r.merge(current, ev.Record, ev.Fields)
	if reflect.DeepEqual(merged, current) {
		return false, "unchanged"
	}
	r.state.put(key, merged)
	return true, ""
}

func (r *Reconciler[R]) applyDeleted(ev Event[R]) (bool, string) {
	key, ok := r.eventKey(ev)
	if !ok {
		return false, "missing_key"
	}
	if r.state.remove(key) {
		return true, ""
	}
	row, cached, reason := r.route(ev)
	if reason != "" {
		return false, reason
	}
	if cached {
		return false, "absent"
	}
	if !r.ledger.deleted(key) {
		return false, "duplicate"
	}
	if r.replaying {
		return false, "snapshot_count"
	}
	if row.Count > 0 {
		row.Count--
	}
	r.state.putParent(row)
	return true, ""
}

func (r *Reconciler[R]) applyParentAdded(ev Event[R]) (bool, string) {
	key := r.parentKey(ev)
	if key == "" {
		return false, "missing_key"
	}
	if _, ok := r.state.Parent(key); ok {
		return false, "duplicate"
	}
	count := ev.Count
	if count < 0 {
		count = 0
	}
	r.state.putParent(ParentRow{Key: key, Count: count, Tracked: r.trackAll})
	return true, ""
}

func (r *Reconciler[R]) applyParentRemoved(ev Event[R]) (bool, string) {
	key := r.parentKey(ev)
	if !r.state.removeParent(key) {
		return false, "absent"
	}
	if r.adapter.CascadeParentRemoval && r.adapter.Parent != nil {
		for _, k := range r.state.Keys() {
			rec, _ := r.state.Get(k)
			if r.adapter.Parent(rec) == key {
				r.state.remove(k)
			}
		}
	}
	return true, ""
}

func (r *Reconciler[R]) applyParentDelta(ev Event[R]) (bool, string) {
	row, ok := r.state.Parent(r.parentKey(ev))
	if !ok {
		return false, "unknown_parent"
	}
	if row.Tracked {
		// Tracked counts come from items only.
		return false, "tracked"
	}
	if ev.Count == 0 {
		return false, "unchanged"
	}
	if r.replaying {
		return false, "snapshot_count"
	}
	row.Count += ev.Count
	if row.Count < 0 {
		row.Count = 0
	}
	r.state.putParent(row)
	return true, ""
}

func (r *Reconciler[R]) merge(current, patch R, fields []string) R {
	if r.adapter.Merge == nil {
		return patch
	}
	return r.adapter.Merge(current, patch, fields)
}

func (r *Reconciler[R]) eventKey(ev Event[R]) (string, bool) {
	if ev.Key != "" {
		return ev.Key, true
	}
	return r.safeKey(ev.Record)
}

func (r *Reconciler[R]) parentKey(ev Event[R]) string {
	if ev.ParentKey != "" {
		return ev.ParentKey
	}
	return ev.Key
}

// safeKey derives a key, treating panics and empty keys as unusable records.
func (r *Reconciler[R]) safeKey(rec R) (key string, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("Key function panicked: %v", p)
			key, ok = "", false
		}
	}()
	key = r.adapter.Key(rec)
	return key, key != ""
}

func (r *Reconciler[R]) recompute() {
	r.state.recompute(r.adapter.Size, r.adapter.Parent)
}
