package watch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/logging"
	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/state"
)

type fakeHandle struct {
	mu       sync.Mutex
	listener func(collections.Table)
	calls    []string
	filters  filter.PredicateSet
	bulkKeys []string
}

func (f *fakeHandle) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeHandle) Name() string                   { return "rules" }
func (f *fakeHandle) Scope() string                  { return "" }
func (f *fakeHandle) Start(context.Context) error    { return nil }
func (f *fakeHandle) Stop()                          {}
func (f *fakeHandle) Current() collections.Table     { return collections.Table{Category: "Name"} }
func (f *fakeHandle) Refresh()                       { f.record("refresh") }
func (f *fakeHandle) ToggleSelection(key string)     { f.record("toggle " + key) }
func (f *fakeHandle) SelectAll()                     { f.record("select-all") }
func (f *fakeHandle) ClearSelection()                { f.record("clear-selection") }
func (f *fakeHandle) SetFilters(filter.PredicateSet) {}
func (f *fakeHandle) RemoveFilter(string, string)    {}
func (f *fakeHandle) ClearFilters()                  { f.record("clear-filters") }
func (f *fakeHandle) Search(text string)             { f.record("search " + text) }
func (f *fakeHandle) Categories() []string           { return []string{"Name", "Enabled"} }
func (f *fakeHandle) Actions() []string              { return []string{"delete", "disable", "enable"} }

func (f *fakeHandle) WaitLoaded(context.Context) (collections.Table, error) {
	return f.Current(), nil
}

func (f *fakeHandle) OnChange(fn func(collections.Table)) func() {
	f.listener = fn
	return func() { f.listener = nil }
}

func (f *fakeHandle) AddFilter(category, value string) error {
	if category != "Name" && category != "Enabled" {
		return errors.UnknownCategory(category)
	}
	f.record("filter " + category + "=" + value)
	return nil
}

func (f *fakeHandle) SelectCategory(name string) error {
	f.record("category " + name)
	return nil
}

func (f *fakeHandle) BulkAction(_ context.Context, action string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkKeys = keys
	f.calls = append(f.calls, "bulk "+action)
	return nil
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func loaded() tableMsg {
	return tableMsg{
		Collection: "rules",
		Columns:    []string{"NAME", "ENABLED"},
		Rows: []collections.Row{
			{Key: "a", Cells: []string{"a", "true"}},
			{Key: "b", Cells: []string{"b", "false"}},
		},
		Loaded:   true,
		Category: "Name",
	}
}

func newModel(t *testing.T) (*Model, *fakeHandle, *state.Store) {
	h := &fakeHandle{}
	st := state.Open(filepath.Join(t.TempDir(), "state.yml"))
	m := New(h, Options{State: st, Logger: logging.Nop()})
	t.Cleanup(m.Close)
	m.Update(loaded())
	return m, h, st
}

func TestUpdatesArriveThroughOnChange(t *testing.T) {
	h := &fakeHandle{}
	m := New(h, Options{Logger: logging.Nop()})
	defer m.Close()

	require.NotNil(t, h.listener)
	h.listener(collections.Table{Version: 1})
	h.listener(collections.Table{Version: 2})

	msg := waitForTable(m.updates)()
	_, cmd := m.Update(msg)
	assert.NotNil(t, cmd)
	assert.Equal(t, uint64(2), m.Table().Version)
}

func TestNavigationAndSelection(t *testing.T) {
	m, h, _ := newModel(t)

	m.Update(runes("j"))
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m.Update(runes("j")) // clamped at the last row
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m.Update(runes("g"))
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m.Update(runes("r"))

	assert.Equal(t, []string{"toggle b", "toggle b", "toggle a", "select-all", "refresh"}, h.calls)
}

func TestSearchAndFilterInput(t *testing.T) {
	m, h, st := newModel(t)

	m.Update(runes("/"))
	m.Update(runes("ab"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("f"))
	m.Update(runes("true"))
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	m.Update(runes("f"))
	m.Update(runes("x"))
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Equal(t, []string{"search ab", "category Enabled", "filter Enabled=true"}, h.calls)
	saved, err := st.Filters("rules", "")
	require.NoError(t, err)
	assert.Equal(t, filter.PredicateSet{"Enabled": {"true"}}, saved)

	m.Update(runes("F"))
	saved, err = st.Filters("rules", "")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestActionMenuRunsOnCursorRow(t *testing.T) {
	m, h, _ := newModel(t)

	m.Update(runes("a"))
	assert.Contains(t, m.View(), "1 delete")
	_, cmd := m.Update(runes("2"))
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, []string{"a"}, h.bulkKeys)
	m.Update(msg)
	assert.Contains(t, m.View(), "disable applied to 1 item(s)")
}

func TestQuit(t *testing.T) {
	m, _, _ := newModel(t)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
