package view

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/pkg/live"
	"github.com/grovetools/cryoview/pkg/loader"
	"github.com/grovetools/cryoview/pkg/notify"
)

type item struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

const (
	itemCreated = "ItemCreated"
	itemDeleted = "ItemDeleted"
)

// backend is a scripted snapshot source.
type backend struct {
	mu    sync.Mutex
	items []item
	err   error
	calls atomic.Int32
}

func (b *backend) set(items []item, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = items
	b.err = err
}

func (b *backend) query(ctx context.Context, scope string) (live.Snapshot[item], error) {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return live.Snapshot[item]{}, b.err
	}
	return live.Snapshot[item]{Records: append([]item(nil), b.items...)}, nil
}

func parseItem(kind live.Kind) notify.Parser[item] {
	return func(msg notify.Message) ([]live.Event[item], error) {
		var it item
		if err := json.Unmarshal(msg.Payload, &it); err != nil {
			return nil, err
		}
		return []live.Event[item]{{Kind: kind, Record: it}}, nil
	}
}

func testConfig(b *backend, hub *notify.Hub) Config[item] {
	return Config[item]{
		Name:  "items",
		Scope: "jvm-1",
		Adapter: live.Adapter[item]{
			Key: func(i item) string { return i.Name },
		},
		Query:   b.query,
		Channel: hub,
		Parsers: map[string]notify.Parser[item]{
			itemCreated: parseItem(live.Created),
			itemDeleted: parseItem(live.Deleted),
		},
		Categories: []filter.Category[item]{
			{Name: "Name", Match: filter.Substring(func(i item) string { return i.Name })},
			{Name: "State", Match: filter.Exact(func(i item) string { return i.State })},
		},
		RefreshInterval: time.Millisecond,
	}
}

func startView(t *testing.T, cfg Config[item]) *View[item] {
	t.Helper()
	v, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, v.Start(context.Background()))
	t.Cleanup(v.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = v.WaitLoaded(ctx)
	require.NoError(t, err)
	return v
}

func names(s Snapshot[item]) []string {
	out := make([]string, len(s.Visible))
	for i, it := range s.Visible {
		out[i] = it.Name
	}
	return out
}

func eventually(t *testing.T, v *View[item], cond func(Snapshot[item]) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(v.Current()) }, 2*time.Second, 5*time.Millisecond, msg)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config[item]{})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	cfg := testConfig(&backend{}, notify.NewHub())
	cfg.Channel = nil
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestLoadThenLiveEvents(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "rec1"}}, nil)
	hub := notify.NewHub()
	v := startView(t, testConfig(b, hub))

	snap := v.Current()
	assert.True(t, snap.Loaded)
	assert.False(t, snap.Loading)
	assert.Equal(t, []string{"rec1"}, names(snap))

	_, err := hub.Publish(itemCreated, item{Name: "rec2"})
	require.NoError(t, err)
	eventually(t, v, func(s Snapshot[item]) bool { return len(s.Visible) == 2 }, "created event not applied")
	snap = v.Current()
	assert.Equal(t, []string{"rec1", "rec2"}, names(snap))
	assert.Equal(t, []string{"rec1", "rec2"}, snap.Keys)
	assert.Equal(t, 2, snap.Aggregate.Count)

	_, err = hub.Publish(itemDeleted, item{Name: "rec1"})
	require.NoError(t, err)
	_, err = hub.Publish(itemDeleted, item{Name: "rec1"})
	require.NoError(t, err)
	eventually(t, v, func(s Snapshot[item]) bool { return len(s.Visible) == 1 }, "delete not applied")
	assert.Equal(t, []string{"rec2"}, names(v.Current()))
}

func TestFailedRefreshKeepsRows(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "a"}, {Name: "b"}, {Name: "c"}}, nil)
	v := startView(t, testConfig(b, notify.NewHub()))
	require.Len(t, v.Current().Visible, 3)

	b.set(nil, errors.AuthFailure(fmt.Errorf("401")))
	v.Refresh()
	eventually(t, v, func(s Snapshot[item]) bool { return s.Err != nil && !s.Loading }, "failure not surfaced")

	snap := v.Current()
	assert.True(t, errors.Is(snap.Err, errors.ErrCodeAuthFailure))
	assert.Equal(t, []string{"a", "b", "c"}, names(snap))

	b.set([]item{{Name: "a"}}, nil)
	eventually(t, v, func(s Snapshot[item]) bool {
		if s.Err == nil {
			return true
		}
		v.Refresh()
		return false
	}, "error not cleared by a successful load")
	assert.Equal(t, []string{"a"}, names(v.Current()))
}

func TestFiltersAndSearch(t *testing.T) {
	b := &backend{}
	b.set([]item{
		{Name: "alpha", State: "RUNNING"},
		{Name: "beta", State: "STOPPED"},
		{Name: "alphabet", State: "STOPPED"},
	}, nil)
	v := startView(t, testConfig(b, notify.NewHub()))

	require.NoError(t, v.AddFilter("Name", "alpha"))
	assert.Equal(t, []string{"alpha", "alphabet"}, names(v.Current()))

	require.NoError(t, v.AddFilter("State", "STOPPED"))
	assert.Equal(t, []string{"alphabet"}, names(v.Current()))
	assert.Equal(t, []string{"STOPPED"}, v.Current().Filters["State"])

	v.RemoveFilter("Name", "alpha")
	assert.Equal(t, []string{"beta", "alphabet"}, names(v.Current()))

	v.ClearFilters()
	assert.Len(t, v.Current().Visible, 3)

	err := v.AddFilter("Colour", "red")
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownCategory))

	require.NoError(t, v.SelectCategory("Name"))
	v.Search("bet")
	snap := v.Current()
	assert.Equal(t, []string{"beta", "alphabet"}, names(snap))
	assert.Equal(t, "bet", snap.Search)
	assert.Equal(t, "Name", snap.Category)

	v.SetFilters(filter.PredicateSet{"State": {"RUNNING"}})
	v.Search("")
	assert.Equal(t, []string{"alpha"}, names(v.Current()))
}

func TestSelectionAndBulkAction(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "a"}, {Name: "b"}, {Name: "c"}}, nil)
	hub := notify.NewHub()
	cfg := testConfig(b, hub)

	var mu sync.Mutex
	var deleted []string
	cfg.Actions = map[string]Action{
		"delete": func(ctx context.Context, keys []string) error {
			mu.Lock()
			deleted = append(deleted, keys...)
			mu.Unlock()
			return nil
		},
		"fail": func(ctx context.Context, keys []string) error {
			return fmt.Errorf("backend said no")
		},
	}
	v := startView(t, cfg)
	assert.Equal(t, []string{"delete", "fail"}, v.Actions())

	err := v.BulkAction(context.Background(), "delete", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	v.ToggleSelection("a")
	v.ToggleSelection("c")
	v.ToggleSelection("nope")
	assert.Equal(t, []string{"a", "c"}, v.Current().Selected)
	v.ToggleSelection("c")
	assert.Equal(t, []string{"a"}, v.Current().Selected)

	require.NoError(t, v.BulkAction(context.Background(), "delete", nil))
	mu.Lock()
	assert.Equal(t, []string{"a"}, deleted)
	mu.Unlock()
	assert.Empty(t, v.Current().Selected)

	v.SelectAll()
	assert.Equal(t, []string{"a", "b", "c"}, v.Current().Selected)
	assert.EqualError(t, v.BulkAction(context.Background(), "fail", nil), "backend said no")
	assert.Len(t, v.Current().Selected, 3)

	err = v.BulkAction(context.Background(), "archive", []string{"a"})
	assert.True(t, errors.Is(err, errors.ErrCodeUnknownAction))

	// A removed record drops out of the selection.
	_, err = hub.Publish(itemDeleted, item{Name: "b"})
	require.NoError(t, err)
	eventually(t, v, func(s Snapshot[item]) bool { return len(s.Selected) == 2 }, "selection not pruned")
	assert.Equal(t, []string{"a", "c"}, v.Current().Selected)

	v.ClearSelection()
	assert.Empty(t, v.Current().Selected)
}

func TestResyncReloads(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "a"}}, nil)
	hub := notify.NewHub()
	v := startView(t, testConfig(b, hub))
	before := b.calls.Load()

	b.set([]item{{Name: "a"}, {Name: "missed"}}, nil)
	hub.Deliver(notify.Message{Category: notify.CategoryReconnected})
	eventually(t, v, func(s Snapshot[item]) bool { return len(s.Visible) == 2 }, "resync did not reload")
	assert.Greater(t, b.calls.Load(), before)
}

func TestPollsWhileTransient(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "a", State: "RUNNING"}}, nil)
	cfg := testConfig(b, notify.NewHub())
	cfg.Poll = loader.PollPolicy[item]{
		Interval:  10 * time.Millisecond,
		Transient: func(i item) bool { return i.State == "RUNNING" },
	}
	v := startView(t, cfg)
	assert.True(t, v.Current().Polling)

	require.Eventually(t, func() bool { return b.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	b.set([]item{{Name: "a", State: "STOPPED"}}, nil)
	eventually(t, v, func(s Snapshot[item]) bool {
		return len(s.Visible) == 1 && s.Visible[0].State == "STOPPED" && !s.Polling
	}, "polling did not settle")

	settled := b.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, b.calls.Load(), settled+1)
}

func TestStopSilencesCallbacks(t *testing.T) {
	b := &backend{}
	b.set([]item{{Name: "a"}}, nil)
	hub := notify.NewHub()
	v := startView(t, testConfig(b, hub))

	var calls atomic.Int32
	cancel := v.OnChange(func(Snapshot[item]) { calls.Add(1) })
	defer cancel()

	_, err := hub.Publish(itemCreated, item{Name: "b"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)

	v.Stop()
	v.Stop()
	after := calls.Load()
	assert.Empty(t, v.Current().Visible)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Publish(itemCreated, item{Name: "c"})
	v.Refresh()
	v.ToggleSelection("a")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())

	err = v.Start(context.Background())
	assert.True(t, errors.Is(err, errors.ErrCodeViewStopped))
}

func TestCommandsBeforeStartAreIgnored(t *testing.T) {
	v, err := New(testConfig(&backend{}, notify.NewHub()))
	require.NoError(t, err)
	defer v.Stop()

	v.Refresh()
	v.ClearFilters()
	assert.False(t, v.Current().Loaded)
	assert.Equal(t, "Name", v.Current().Category)
	assert.True(t, strings.HasPrefix(v.Name(), "items"))
}
