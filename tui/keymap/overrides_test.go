package keymap

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cryoview/config"
)

func TestCamelToSnake(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"SelectAll", "select_all"},
		{"NextCategory", "next_category"},
		{"Up", "up"},
		{"HTTPServer", "h_t_t_p_server"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, camelToSnake(tt.input))
		})
	}
}

type extended struct {
	Watch
	Export      key.Binding
	unexported  key.Binding
	NotABinding string
}

func TestApplyOverrides(t *testing.T) {
	km := extended{Watch: NewWatch(), Export: key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export"))}
	ApplyOverrides(&km, Overrides{
		"select_all": {"A"},
		"export":     {"E", "ctrl+e"},
		"missing":    {"z"},
	})

	assert.Equal(t, []string{"A"}, km.SelectAll.Keys())
	assert.Equal(t, "select all", km.SelectAll.Help().Desc)
	assert.Equal(t, []string{"E", "ctrl+e"}, km.Export.Keys())
	assert.Equal(t, "E", km.Export.Help().Key)
	assert.Equal(t, []string{"q", "ctrl+c"}, km.Quit.Keys())

	// Non-pointers are ignored.
	ApplyOverrides(km, Overrides{"quit": {"x"}})
	ApplyOverrides(&km, nil)
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.LoadFromBytes([]byte("tui:\n  keybindings:\n    refresh: [\"R\"]\n"), "yaml")
	require.NoError(t, err)
	overrides, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, Overrides{"refresh": {"R"}}, overrides)

	overrides, err = FromConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, overrides)
}

func TestHelpGroups(t *testing.T) {
	km := NewWatch()
	assert.Len(t, km.ShortHelp(), 7)
	assert.Len(t, km.FullHelp(), 4)
}
