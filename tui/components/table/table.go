// Package table renders collection snapshots with lipgloss tables.
package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"

	"github.com/grovetools/cryoview/pkg/collections"
	"github.com/grovetools/cryoview/tui/theme"
)

// Options controls rendering.
type Options struct {
	// Cursor is the highlighted data row, or -1 for none.
	Cursor int
	// ShowSelection adds a leading selection marker column.
	ShowSelection bool
	// Height limits the number of data rows. Zero means unlimited.
	Height int
	Theme  *theme.Theme
}

// DefaultOptions returns options for one-shot output.
func DefaultOptions() Options {
	return Options{Cursor: -1, Theme: theme.DefaultTheme}
}

// NewStyledTable creates a lipgloss table with the default styling.
func NewStyledTable(t *theme.Theme) *ltable.Table {
	if t == nil {
		t = theme.DefaultTheme
	}
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(t.Colors.Border)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return t.TableHeader.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

// Render draws the record rows of a snapshot.
func Render(tbl collections.Table, opts Options) string {
	if opts.Theme == nil {
		opts.Theme = theme.DefaultTheme
	}
	t := opts.Theme

	headers := tbl.Columns
	if opts.ShowSelection {
		headers = append([]string{" "}, headers...)
	}

	start, end := window(len(tbl.Rows), opts.Cursor, opts.Height)
	rows := make([][]string, 0, end-start)
	for _, r := range tbl.Rows[start:end] {
		cells := make([]string, len(r.Cells))
		for i, c := range r.Cells {
			cells[i] = styleCell(t, tbl.Columns[i], c)
		}
		if opts.ShowSelection {
			marker := theme.IconUnselected
			if r.Selected {
				marker = t.Highlight.Render(theme.IconSelected)
			}
			cells = append([]string{marker}, cells...)
		}
		rows = append(rows, cells)
	}

	cursor := opts.Cursor - start
	out := NewStyledTable(t).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return t.TableHeader.Padding(0, 1)
			}
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == cursor {
				style = style.Inherit(t.SelectedRow)
			}
			return style
		})
	return out.String()
}

// RenderParents draws the per-parent rows of a parent/child collection.
func RenderParents(tbl collections.Table, t *theme.Theme) string {
	if len(tbl.ParentColumns) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(tbl.Parents))
	for _, p := range tbl.Parents {
		rows = append(rows, p.Cells)
	}
	return NewStyledTable(t).Headers(tbl.ParentColumns...).Rows(rows...).String()
}

// window picks the slice of rows to show so that cursor stays visible.
func window(n, cursor, height int) (int, int) {
	if height <= 0 || n <= height {
		return 0, n
	}
	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}
	return start, start + height
}

func styleCell(t *theme.Theme, column, value string) string {
	if column != "STATE" {
		return value
	}
	switch value {
	case "RUNNING", "STARTING", "DELAYED", "NEW":
		return t.Success.Render(theme.IconRunning + " " + value)
	case "STOPPING":
		return t.Warning.Render(theme.IconPending + " " + value)
	case "STOPPED", "CLOSED":
		return t.Muted.Render(theme.IconStopped + " " + value)
	}
	return value
}

// StatusLine summarises load state, filters and aggregates.
func StatusLine(tbl collections.Table, t *theme.Theme) string {
	if t == nil {
		t = theme.DefaultTheme
	}
	var parts []string
	switch {
	case tbl.Err != nil:
		parts = append(parts, t.Error.Render(theme.IconError+" "+tbl.Err.Error()))
	case tbl.Loading && !tbl.Loaded:
		parts = append(parts, t.Info.Render("loading"))
	case tbl.Loading:
		parts = append(parts, t.Muted.Render("refreshing"))
	}

	count := fmt.Sprintf("%d items", tbl.Aggregate.Count)
	if tbl.Aggregate.TotalSize > 0 {
		count += ", " + HumanSize(tbl.Aggregate.TotalSize)
	}
	parts = append(parts, count)
	if len(tbl.Selected) > 0 {
		parts = append(parts, t.Highlight.Render(fmt.Sprintf("%d selected", len(tbl.Selected))))
	}
	if tbl.Polling {
		parts = append(parts, t.Muted.Render("polling"))
	}
	if chips := FilterChips(tbl, t); chips != "" {
		parts = append(parts, chips)
	}
	return strings.Join(parts, "  ")
}

// FilterChips renders active filters as "Category: value" chips.
func FilterChips(tbl collections.Table, t *theme.Theme) string {
	cats := make([]string, 0, len(tbl.Filters))
	for c := range tbl.Filters {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var chips []string
	for _, c := range cats {
		for _, v := range tbl.Filters[c] {
			chips = append(chips, t.Chip.Render(c+": "+v))
		}
	}
	if tbl.Search != "" {
		chips = append(chips, t.Chip.Render(theme.IconSearch+" "+tbl.Category+"~"+tbl.Search))
	}
	return strings.Join(chips, " ")
}

// HumanSize formats a byte count.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
