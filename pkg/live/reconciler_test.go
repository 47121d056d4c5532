package live

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	Target   string `json:"target"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Duration int    `json:"duration"`
	Size     int64  `json:"size"`
}

func mergeRec(current, patch rec, fields []string) rec {
	if fields == nil {
		return patch
	}
	out := current
	for _, f := range fields {
		switch f {
		case "target":
			out.Target = patch.Target
		case "name":
			out.Name = patch.Name
		case "label":
			out.Label = patch.Label
		case "duration":
			out.Duration = patch.Duration
		case "size":
			out.Size = patch.Size
		}
	}
	return out
}

func flatAdapter() Adapter[rec] {
	return Adapter[rec]{
		Key:   func(r rec) string { return r.Name },
		Merge: mergeRec,
		Size:  func(r rec) int64 { return r.Size },
	}
}

func childAdapter() Adapter[rec] {
	a := flatAdapter()
	a.Key = func(r rec) string { return r.Target + "/" + r.Name }
	a.Parent = func(r rec) string { return r.Target }
	return a
}

func created(r rec) Event[rec] { return Event[rec]{Kind: Created, Record: r} }
func deleted(r rec) Event[rec] { return Event[rec]{Kind: Deleted, Record: r} }

func seeded(t *testing.T, a Adapter[rec], records ...rec) *Reconciler[rec] {
	t.Helper()
	r := NewReconciler(a)
	ticket := r.BeginLoad()
	require.Equal(t, LoadApplied, r.CompleteLoad(ticket, Snapshot[rec]{Records: records}))
	return r
}

func names(s *State[rec]) []string {
	var out []string
	for _, r := range s.Items() {
		out = append(out, r.Name)
	}
	return out
}

func TestCreatedAppendsInInsertionOrder(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "rec1"})

	assert.True(t, r.Apply(created(rec{Name: "rec2"})))
	assert.Equal(t, []string{"rec1", "rec2"}, names(r.State()))
}

func TestDuplicateCreatedIsIdempotent(t *testing.T) {
	r := seeded(t, flatAdapter())
	require.True(t, r.Apply(created(rec{Name: "a", Duration: 30})))
	v := r.State().Version()

	assert.False(t, r.Apply(created(rec{Name: "a", Duration: 30})))
	assert.Equal(t, v, r.State().Version())
	assert.Equal(t, 1, r.State().Len())
}

func TestCreatedForKnownKeyMerges(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a", Label: "env=dev", Duration: 30})

	ev := created(rec{Name: "a", Label: "env=prod"})
	ev.Fields = []string{"label"}
	require.True(t, r.Apply(ev))

	got, ok := r.State().Get("a")
	require.True(t, ok)
	assert.Equal(t, "env=prod", got.Label)
	assert.Equal(t, 30, got.Duration)
}

func TestUpdatedAbsentIsNoop(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a"})
	v := r.State().Version()

	assert.False(t, r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "ghost"}, Fields: []string{"label"}}))
	assert.False(t, r.State().Has("ghost"))
	assert.Equal(t, v, r.State().Version())
}

// Scenario B at the reconciler level.
func TestUpdatedPreservesUntouchedFields(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "rec1", Label: "env=dev", Duration: 60, Size: 10})

	ok := r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "rec1", Label: "env=prod"}, Fields: []string{"label"}})
	require.True(t, ok)

	got, _ := r.State().Get("rec1")
	assert.Equal(t, rec{Name: "rec1", Label: "env=prod", Duration: 60, Size: 10}, got)
}

func TestUpdateKeepsPosition(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a"}, rec{Name: "b"}, rec{Name: "c"})

	r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "a", Label: "x"}, Fields: []string{"label"}})
	assert.Equal(t, []string{"a", "b", "c"}, names(r.State()))

	r.Apply(deleted(rec{Name: "a"}))
	r.Apply(created(rec{Name: "a"}))
	assert.Equal(t, []string{"b", "c", "a"}, names(r.State()))
}

// Scenario C.
func TestDuplicateDeleteIsNoop(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a"}, rec{Name: "b"})

	assert.True(t, r.Apply(deleted(rec{Name: "a"})))
	v := r.State().Version()
	assert.False(t, r.Apply(deleted(rec{Name: "a"})))

	assert.False(t, r.State().Has("a"))
	assert.Equal(t, v, r.State().Version())
	assert.Equal(t, []string{"b"}, names(r.State()))
}

func TestAggregateRecomputedAfterEveryMutation(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a", Size: 100}, rec{Name: "b", Size: 50})
	assert.Equal(t, Aggregate{Count: 2, TotalSize: 150}, r.State().Aggregate())

	r.Apply(created(rec{Name: "c", Size: 25}))
	assert.Equal(t, Aggregate{Count: 3, TotalSize: 175}, r.State().Aggregate())

	r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "a", Size: 10}, Fields: []string{"size"}})
	assert.Equal(t, Aggregate{Count: 3, TotalSize: 85}, r.State().Aggregate())

	r.Apply(deleted(rec{Name: "b"}))
	r.Apply(deleted(rec{Name: "b"}))
	assert.Equal(t, Aggregate{Count: 2, TotalSize: 35}, r.State().Aggregate())
}

// Snapshot S = {a}; events during the load: create b, delete a.
func TestSnapshotThenReplay(t *testing.T) {
	r := NewReconciler(flatAdapter())
	ticket := r.BeginLoad()
	assert.True(t, r.Loading())

	r.Apply(created(rec{Name: "b"}))
	r.Apply(deleted(rec{Name: "a"}))

	outcome := r.CompleteLoad(ticket, Snapshot[rec]{Records: []rec{{Name: "a"}}})
	assert.Equal(t, LoadApplied, outcome)
	assert.False(t, r.Loading())
	assert.Equal(t, []string{"b"}, names(r.State()))
}

func TestStaleTicketDropped(t *testing.T) {
	r := NewReconciler(flatAdapter())
	first := r.BeginLoad()
	second := r.BeginLoad()

	assert.Equal(t, LoadStale, r.CompleteLoad(first, Snapshot[rec]{Records: []rec{{Name: "old"}}}))
	assert.Equal(t, 0, r.State().Len())
	assert.True(t, r.Loading())

	assert.Equal(t, LoadApplied, r.CompleteLoad(second, Snapshot[rec]{Records: []rec{{Name: "new"}}}))
	assert.Equal(t, []string{"new"}, names(r.State()))

	// Completing the same ticket twice is stale as well.
	assert.Equal(t, LoadStale, r.CompleteLoad(second, Snapshot[rec]{}))
	assert.Equal(t, []string{"new"}, names(r.State()))
}

func TestBufferSurvivesSupersedingLoad(t *testing.T) {
	r := NewReconciler(flatAdapter())
	r.BeginLoad()
	r.Apply(created(rec{Name: "early"}))
	second := r.BeginLoad()

	// The newer snapshot predates "early".
	r.CompleteLoad(second, Snapshot[rec]{Records: []rec{{Name: "base"}}})
	assert.Equal(t, []string{"base", "early"}, names(r.State()))
}

func TestFailLoadKeepsState(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a"}, rec{Name: "b"}, rec{Name: "c"})
	v := r.State().Version()

	ticket := r.BeginLoad()
	assert.False(t, r.FailLoad(ticket+1))
	assert.True(t, r.FailLoad(ticket))
	assert.False(t, r.Loading())
	assert.Equal(t, []string{"a", "b", "c"}, names(r.State()))
	assert.Equal(t, v, r.State().Version())

	// Events are no longer buffered.
	r.Apply(created(rec{Name: "d"}))
	next := r.BeginLoad()
	r.CompleteLoad(next, Snapshot[rec]{Records: []rec{{Name: "a"}}})
	assert.Equal(t, []string{"a"}, names(r.State()))
}

func TestBufferOverflowRequestsRefetch(t *testing.T) {
	r := NewReconciler(flatAdapter(), WithBufferLimit(2))
	ticket := r.BeginLoad()
	r.Apply(created(rec{Name: "a"}))
	r.Apply(created(rec{Name: "b"}))
	r.Apply(created(rec{Name: "c"}))

	outcome := r.CompleteLoad(ticket, Snapshot[rec]{})
	assert.Equal(t, LoadOverflowed, outcome)
	assert.Equal(t, []string{"a", "b"}, names(r.State()))
}

func TestSnapshotBumpsVersion(t *testing.T) {
	r := NewReconciler(flatAdapter())
	assert.Equal(t, uint64(0), r.State().Version())
	ticket := r.BeginLoad()
	r.CompleteLoad(ticket, Snapshot[rec]{})
	assert.Equal(t, uint64(1), r.State().Version())
}

func TestMergePanicSkipsEvent(t *testing.T) {
	a := flatAdapter()
	a.Merge = func(current, patch rec, fields []string) rec {
		if patch.Label == "boom" {
			panic("bad patch")
		}
		return mergeRec(current, patch, fields)
	}
	r := seeded(t, a, rec{Name: "a", Label: "ok"})

	assert.False(t, r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "a", Label: "boom"}, Fields: []string{"label"}}))
	got, _ := r.State().Get("a")
	assert.Equal(t, "ok", got.Label)

	assert.True(t, r.Apply(Event[rec]{Kind: Updated, Record: rec{Name: "a", Label: "fine"}, Fields: []string{"label"}}))
}

func TestKeyPanicSkipsSnapshotRecord(t *testing.T) {
	a := flatAdapter()
	a.Key = func(r rec) string {
		if r.Name == "" {
			panic("no name")
		}
		return r.Name
	}
	r := seeded(t, a, rec{Name: "a"}, rec{}, rec{Name: "b"})
	assert.Equal(t, []string{"a", "b"}, names(r.State()))
}

func TestUnknownKindIgnored(t *testing.T) {
	r := seeded(t, flatAdapter())
	assert.False(t, r.Apply(Event[rec]{Kind: Kind(99), Record: rec{Name: "a"}}))
	assert.Equal(t, "kind(99)", Kind(99).String())
}

func TestTrackedParentCountRecomputed(t *testing.T) {
	r := NewReconciler(childAdapter())
	ticket := r.BeginLoad()
	r.CompleteLoad(ticket, Snapshot[rec]{
		Records:  []rec{{Target: "t1", Name: "a"}, {Target: "t1", Name: "b"}},
		Parents:  []ParentRow{{Key: "t1"}, {Key: "t2"}},
		TrackAll: true,
	})

	row, ok := r.State().Parent("t1")
	require.True(t, ok)
	assert.Equal(t, 2, row.Count)
	assert.True(t, row.Tracked)

	r.Apply(created(rec{Target: "t2", Name: "c"}))
	r.Apply(created(rec{Target: "t2", Name: "c"}))
	row, _ = r.State().Parent("t2")
	assert.Equal(t, 1, row.Count)

	// Deltas do not move tracked rows.
	assert.False(t, r.Apply(Event[rec]{Kind: ParentCountDelta, ParentKey: "t2", Count: 5}))

	r.Apply(deleted(rec{Target: "t1", Name: "a"}))
	r.Apply(deleted(rec{Target: "t1", Name: "a"}))
	row, _ = r.State().Parent("t1")
	assert.Equal(t, 1, row.Count)
}

func TestUntrackedParentDeltasDeduplicated(t *testing.T) {
	r := NewReconciler(childAdapter())
	ticket := r.BeginLoad()
	r.CompleteLoad(ticket, Snapshot[rec]{Parents: []ParentRow{{Key: "t1", Count: 3}}})

	assert.True(t, r.Apply(created(rec{Target: "t1", Name: "new"})))
	assert.False(t, r.Apply(created(rec{Target: "t1", Name: "new"})))
	row, _ := r.State().Parent("t1")
	assert.Equal(t, 4, row.Count)
	assert.Equal(t, 0, r.State().Len())

	assert.True(t, r.Apply(deleted(rec{Target: "t1", Name: "old"})))
	assert.False(t, r.Apply(deleted(rec{Target: "t1", Name: "old"})))
	row, _ = r.State().Parent("t1")
	assert.Equal(t, 3, row.Count)

	assert.True(t, r.Apply(Event[rec]{Kind: ParentCountDelta, ParentKey: "t1", Count: -10}))
	row, _ = r.State().Parent("t1")
	assert.Equal(t, 0, row.Count)
}

// A child created while the snapshot was in flight is already counted by it.
func TestUntrackedCountsFromSnapshotAreAuthoritative(t *testing.T) {
	r := NewReconciler(childAdapter())
	ticket := r.BeginLoad()
	r.Apply(created(rec{Target: "t1", Name: "x"}))
	r.Apply(Event[rec]{Kind: ParentCountDelta, ParentKey: "t1", Count: 2})

	r.CompleteLoad(ticket, Snapshot[rec]{Parents: []ParentRow{{Key: "t1", Count: 1}}})
	row, ok := r.State().Parent("t1")
	require.True(t, ok)
	assert.Equal(t, 1, row.Count)

	// The replayed create still suppresses a redelivery.
	assert.False(t, r.Apply(created(rec{Target: "t1", Name: "x"})))
	row, _ = r.State().Parent("t1")
	assert.Equal(t, 1, row.Count)

	assert.True(t, r.Apply(deleted(rec{Target: "t1", Name: "x"})))
	row, _ = r.State().Parent("t1")
	assert.Equal(t, 0, row.Count)
}

func TestOrphanChildIgnored(t *testing.T) {
	r := NewReconciler(childAdapter())
	ticket := r.BeginLoad()
	r.CompleteLoad(ticket, Snapshot[rec]{Parents: []ParentRow{{Key: "t1"}}, TrackAll: true})

	assert.False(t, r.Apply(created(rec{Target: "nowhere", Name: "a"})))
	assert.Equal(t, 0, r.State().Len())
}

func TestParentLifecycle(t *testing.T) {
	a := childAdapter()
	a.CascadeParentRemoval = true
	r := NewReconciler(a)
	ticket := r.BeginLoad()
	r.CompleteLoad(ticket, Snapshot[rec]{TrackAll: true})

	assert.True(t, r.Apply(Event[rec]{Kind: ParentAdded, ParentKey: "t1"}))
	assert.False(t, r.Apply(Event[rec]{Kind: ParentAdded, ParentKey: "t1"}))
	r.Apply(created(rec{Target: "t1", Name: "a"}))
	r.Apply(created(rec{Target: "t1", Name: "b"}))

	row, _ := r.State().Parent("t1")
	assert.True(t, row.Tracked)
	assert.Equal(t, 2, row.Count)

	assert.True(t, r.Apply(Event[rec]{Kind: ParentRemoved, ParentKey: "t1"}))
	assert.False(t, r.Apply(Event[rec]{Kind: ParentRemoved, ParentKey: "t1"}))
	assert.Empty(t, r.State().Parents())
	assert.Equal(t, 0, r.State().Len())
}

func TestResetDiscardsState(t *testing.T) {
	r := seeded(t, flatAdapter(), rec{Name: "a"})
	r.BeginLoad()
	r.Reset()
	assert.Equal(t, 0, r.State().Len())
	assert.False(t, r.Loading())
}

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewReconciler(flatAdapter(), WithMetrics(m), WithCollection("things"))

	stale := r.BeginLoad()
	current := r.BeginLoad()
	r.CompleteLoad(stale, Snapshot[rec]{})
	r.Apply(created(rec{Name: "a"}))
	r.CompleteLoad(current, Snapshot[rec]{})
	r.Apply(deleted(rec{Name: "zzz"}))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("things", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loads.WithLabelValues("things", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replayed.WithLabelValues("things")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ignored.WithLabelValues("things", "deleted", "absent")))
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Malformed("x")
	m.eventApplied("c", Created)
	m.load("c", "applied")
}
