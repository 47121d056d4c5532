// Package keymap defines the key bindings of the watch TUI.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// Watch holds the bindings of the live collection screen.
type Watch struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding

	Toggle     key.Binding
	SelectAll  key.Binding
	SelectNone key.Binding
	Action     key.Binding

	Refresh      key.Binding
	Search       key.Binding
	NextCategory key.Binding
	PrevCategory key.Binding
	AddFilter    key.Binding
	ClearFilters key.Binding

	Confirm key.Binding
	Back    key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// NewWatch returns the default vim-style bindings.
func NewWatch() Watch {
	return Watch{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("ctrl+u", "pgup"),
			key.WithHelp("C-u", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("ctrl+d", "pgdown"),
			key.WithHelp("C-d", "page down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "bottom"),
		),

		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		SelectAll: key.NewBinding(
			key.WithKeys("ctrl+a"),
			key.WithHelp("C-a", "select all"),
		),
		SelectNone: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "select none"),
		),
		Action: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "actions"),
		),

		Refresh: key.NewBinding(
			key.WithKeys("ctrl+r", "r"),
			key.WithHelp("r", "refresh"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		NextCategory: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next category"),
		),
		PrevCategory: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "prev category"),
		),
		AddFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "add filter"),
		),
		ClearFilters: key.NewBinding(
			key.WithKeys("F"),
			key.WithHelp("F", "clear filters"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k Watch) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Action, k.Search, k.AddFilter, k.Refresh, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k Watch) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Toggle, k.SelectAll, k.SelectNone, k.Action},
		{k.Search, k.NextCategory, k.PrevCategory, k.AddFilter, k.ClearFilters, k.Refresh},
		{k.Confirm, k.Back, k.Help, k.Quit},
	}
}
