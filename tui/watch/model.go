// Package watch is the interactive screen over a live collection.
package watch

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cryoview/logging"
	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/pkg/filter"
	"github.com/grovetools/cryoview/state"
	"github.com/grovetools/cryoview/tui/keymap"
	"github.com/grovetools/cryoview/tui/theme"
)

type mode int

const (
	modeNormal mode = iota
	modeSearch
	modeFilter
	modeAction
)

type tableMsg collections.Table

type actionDoneMsg struct {
	action string
	count  int
	err    error
}

// Options configures the screen. Zero values select defaults.
type Options struct {
	Keys  *keymap.Watch
	State *state.Store
	Theme *theme.Theme
	// Logger receives errors that cannot be shown on screen.
	Logger *logrus.Entry
}

// Model renders a collections.Handle and forwards input to it.
type Model struct {
	handle  collections.Handle
	keys    keymap.Watch
	help    help.Model
	input   textinput.Model
	spinner spinner.Model
	theme   *theme.Theme
	state   *state.Store
	logger  *logrus.Entry

	updates chan collections.Table
	cancel  func()

	table  collections.Table
	cursor int
	mode   mode
	status string
	width  int
	height int
}

// New subscribes to h. The handle should already be started; call Close
// when the program exits.
func New(h collections.Handle, opts Options) *Model {
	keys := keymap.NewWatch()
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	if opts.Theme == nil {
		opts.Theme = theme.DefaultTheme
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger("watch")
	}

	input := textinput.New()
	input.CharLimit = 256
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = opts.Theme.Info

	m := &Model{
		handle:  h,
		keys:    keys,
		help:    help.New(),
		input:   input,
		spinner: sp,
		theme:   opts.Theme,
		state:   opts.State,
		logger:  opts.Logger,
		updates: make(chan collections.Table, 1),
		table:   h.Current(),
	}
	m.cancel = h.OnChange(m.push)
	return m
}

// push keeps only the newest table in the channel.
func (m *Model) push(t collections.Table) {
	for {
		select {
		case m.updates <- t:
			return
		default:
		}
		select {
		case <-m.updates:
		default:
		}
	}
}

// Close stops receiving updates.
func (m *Model) Close() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Table returns the most recently rendered snapshot.
func (m *Model) Table() collections.Table { return m.table }

// Init is the first command that will be executed.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForTable(m.updates), m.spinner.Tick)
}

func waitForTable(ch <-chan collections.Table) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-ch
		if !ok {
			return nil
		}
		return tableMsg(t)
	}
}

func (m *Model) currentKey() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.table.Rows) {
		return "", false
	}
	return m.table.Rows[m.cursor].Key, true
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.table.Rows) {
		m.cursor = len(m.table.Rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) saveFilters(next filter.PredicateSet) {
	if m.state == nil {
		return
	}
	if err := m.state.SaveFilters(m.handle.Name(), m.handle.Scope(), next); err != nil {
		m.logger.WithError(err).Warn("Failed to save filters")
	}
}
