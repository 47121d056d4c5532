package watch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/collections"
)

const actionTimeout = 30 * time.Second

// Update handles messages and updates the model accordingly.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tableMsg:
		m.table = collections.Table(msg)
		m.clampCursor()
		return m, waitForTable(m.updates)

	case actionDoneMsg:
		if msg.err != nil {
			m.status = m.theme.Error.Render(fmt.Sprintf("%s failed: %s", msg.action, message(msg.err)))
		} else {
			m.status = m.theme.Success.Render(fmt.Sprintf("%s applied to %d item(s)", msg.action, msg.count))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.mode {
		case modeSearch, modeFilter:
			return m.updateInput(msg)
		case modeAction:
			return m.updateAction(msg)
		}
		return m.updateNormal(msg)
	}
	return m, nil
}

func (m *Model) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help.ShowAll && !key.Matches(msg, m.keys.Quit) {
		m.help.ShowAll = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = true
	case key.Matches(msg, m.keys.Up):
		m.cursor--
	case key.Matches(msg, m.keys.Down):
		m.cursor++
	case key.Matches(msg, m.keys.PageUp):
		m.cursor -= m.pageSize()
	case key.Matches(msg, m.keys.PageDown):
		m.cursor += m.pageSize()
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(m.table.Rows) - 1
	case key.Matches(msg, m.keys.Toggle):
		if k, ok := m.currentKey(); ok {
			m.handle.ToggleSelection(k)
		}
	case key.Matches(msg, m.keys.SelectAll):
		m.handle.SelectAll()
	case key.Matches(msg, m.keys.SelectNone):
		m.handle.ClearSelection()
	case key.Matches(msg, m.keys.Refresh):
		m.handle.Refresh()
		m.status = ""
	case key.Matches(msg, m.keys.NextCategory):
		m.cycleCategory(1)
	case key.Matches(msg, m.keys.PrevCategory):
		m.cycleCategory(-1)
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		m.input.Placeholder = m.table.Category
		m.input.SetValue(m.table.Search)
		m.input.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.AddFilter):
		m.mode = modeFilter
		m.input.Placeholder = m.table.Category + " value"
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ClearFilters):
		m.handle.ClearFilters()
		m.saveFilters(nil)
	case key.Matches(msg, m.keys.Action):
		if len(m.handle.Actions()) == 0 {
			m.status = m.theme.Muted.Render("no actions for " + m.handle.Name())
			return m, nil
		}
		m.mode = modeAction
	}
	m.clampCursor()
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.input.Blur()
		m.mode = modeNormal
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		value := m.input.Value()
		m.input.Blur()
		if m.mode == modeSearch {
			m.handle.Search(value)
		} else if value != "" {
			if err := m.handle.AddFilter(m.table.Category, value); err != nil {
				m.status = m.theme.Error.Render(message(err))
			} else {
				m.saveFilters(m.table.Filters.With(m.table.Category, value))
			}
		}
		m.mode = modeNormal
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) updateAction(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) {
		m.mode = modeNormal
		return m, nil
	}
	actions := m.handle.Actions()
	n, err := strconv.Atoi(msg.String())
	if err != nil || n < 1 || n > len(actions) {
		return m, nil
	}
	m.mode = modeNormal
	return m, m.runAction(actions[n-1])
}

// runAction applies action to the selection, or to the row under the
// cursor when nothing is selected.
func (m *Model) runAction(action string) tea.Cmd {
	keys := append([]string(nil), m.table.Selected...)
	if len(keys) == 0 {
		k, ok := m.currentKey()
		if !ok {
			m.status = m.theme.Muted.Render("nothing selected")
			return nil
		}
		keys = []string{k}
	}
	m.status = m.theme.Info.Render(fmt.Sprintf("%s %d item(s)...", action, len(keys)))
	h := m.handle
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		err := h.BulkAction(ctx, action, keys)
		return actionDoneMsg{action: action, count: len(keys), err: err}
	}
}

func (m *Model) cycleCategory(step int) {
	cats := m.handle.Categories()
	if len(cats) == 0 {
		return
	}
	i := 0
	for j, c := range cats {
		if c == m.table.Category {
			i = j
			break
		}
	}
	next := cats[(i+step+len(cats))%len(cats)]
	if err := m.handle.SelectCategory(next); err == nil {
		// Shown immediately; the next snapshot confirms it.
		m.table.Category = next
	}
}

func (m *Model) pageSize() int {
	if h := m.tableHeight(); h > 0 {
		return h
	}
	return 10
}

func message(err error) string {
	if ge, ok := errors.As(err); ok {
		return ge.Message
	}
	return err.Error()
}
