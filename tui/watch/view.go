package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/cryoview/tui/components/table"
	"github.com/grovetools/cryoview/tui/theme"
)

// rows used by everything except the record table.
const chromeHeight = 10

func (m *Model) tableHeight() int {
	if m.height == 0 {
		return 0
	}
	h := m.height - chromeHeight
	if len(m.table.Parents) > 0 {
		h -= len(m.table.Parents) + 4
	}
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the screen.
func (m *Model) View() string {
	t := m.theme
	var b strings.Builder

	title := t.Title.Render("cryoview") + " " + t.Accent.Render(m.handle.Name())
	if scope := m.handle.Scope(); scope != "" {
		title += " " + t.Muted.Render(theme.IconTarget+" "+scope)
	}
	if m.table.Loading {
		title += " " + m.spinner.View()
	}
	b.WriteString(title + "\n")
	b.WriteString(table.StatusLine(m.table, t) + "\n")
	b.WriteString(t.Muted.Render("category: ") + t.Bold.Render(m.table.Category) + "\n")

	if m.help.ShowAll {
		b.WriteString("\n" + m.help.View(m.keys))
		return b.String()
	}

	if parents := table.RenderParents(m.table, t); parents != "" {
		b.WriteString(parents + "\n")
	}
	if len(m.table.Rows) == 0 && m.table.Loaded {
		b.WriteString(t.Muted.Render("no items") + "\n")
	} else {
		b.WriteString(table.Render(m.table, table.Options{
			Cursor:        m.cursor,
			ShowSelection: true,
			Height:        m.tableHeight(),
			Theme:         t,
		}) + "\n")
	}

	switch m.mode {
	case modeSearch:
		b.WriteString(theme.IconSearch + " " + m.input.View() + "\n")
	case modeFilter:
		b.WriteString(theme.IconFilter + " " + m.input.View() + "\n")
	case modeAction:
		b.WriteString(m.actionMenu() + "\n")
	default:
		if m.status != "" {
			b.WriteString(m.status + "\n")
		}
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) actionMenu() string {
	parts := []string{m.theme.Bold.Render("action:")}
	for i, a := range m.handle.Actions() {
		parts = append(parts, fmt.Sprintf("%s %s", m.theme.Highlight.Render(fmt.Sprint(i+1)), a))
	}
	parts = append(parts, m.theme.Muted.Render("(esc to cancel)"))
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, "  "))
}
