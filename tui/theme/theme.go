package theme

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/cryoview/config"
)

const defaultThemeName = "kanagawa"

// Colors encapsulates the palette used by a theme. lipgloss.TerminalColor
// allows a mix of adaptive and static colors.
type Colors struct {
	Green              lipgloss.TerminalColor
	Yellow             lipgloss.TerminalColor
	Red                lipgloss.TerminalColor
	Orange             lipgloss.TerminalColor
	Cyan               lipgloss.TerminalColor
	Violet             lipgloss.TerminalColor
	LightText          lipgloss.TerminalColor
	MutedText          lipgloss.TerminalColor
	Border             lipgloss.TerminalColor
	SelectedBackground lipgloss.TerminalColor
}

// Theme holds the pre-configured styles used by tables, the watch TUI and logs.
type Theme struct {
	Colors Colors

	Header lipgloss.Style
	Title  lipgloss.Style

	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	Bold        lipgloss.Style
	Normal      lipgloss.Style
	Muted       lipgloss.Style
	Path        lipgloss.Style
	SelectedRow lipgloss.Style

	TableHeader lipgloss.Style
	TableBorder lipgloss.Style

	Chip      lipgloss.Style
	Highlight lipgloss.Style
	Accent    lipgloss.Style
}

var palettes = map[string]func() Colors{
	"kanagawa": func() Colors {
		return Colors{
			Green:              lipgloss.AdaptiveColor{Light: "#4E7C5A", Dark: "#98BB6C"},
			Yellow:             lipgloss.AdaptiveColor{Light: "#A68A64", Dark: "#FF9E3B"},
			Red:                lipgloss.AdaptiveColor{Light: "#C34043", Dark: "#FF5D62"},
			Orange:             lipgloss.AdaptiveColor{Light: "#CC6B4E", Dark: "#FFA066"},
			Cyan:               lipgloss.AdaptiveColor{Light: "#5B8BBE", Dark: "#7E9CD8"},
			Violet:             lipgloss.AdaptiveColor{Light: "#674D7A", Dark: "#957FB8"},
			LightText:          lipgloss.AdaptiveColor{Light: "#2B2F42", Dark: "#DCD7BA"},
			MutedText:          lipgloss.AdaptiveColor{Light: "#6C7086", Dark: "#727169"},
			Border:             lipgloss.AdaptiveColor{Light: "#B5BDC5", Dark: "#363646"},
			SelectedBackground: lipgloss.AdaptiveColor{Light: "#E2E6F3", Dark: "#223249"},
		}
	},
	"gruvbox": func() Colors {
		return Colors{
			Green:              lipgloss.AdaptiveColor{Light: "#98971A", Dark: "#B8BB26"},
			Yellow:             lipgloss.AdaptiveColor{Light: "#D79921", Dark: "#FABD2F"},
			Red:                lipgloss.AdaptiveColor{Light: "#CC241D", Dark: "#FB4934"},
			Orange:             lipgloss.AdaptiveColor{Light: "#D65D0E", Dark: "#FE8019"},
			Cyan:               lipgloss.AdaptiveColor{Light: "#458588", Dark: "#83A598"},
			Violet:             lipgloss.AdaptiveColor{Light: "#8F3F71", Dark: "#B16286"},
			LightText:          lipgloss.AdaptiveColor{Light: "#3C3836", Dark: "#EBDBB2"},
			MutedText:          lipgloss.AdaptiveColor{Light: "#928374", Dark: "#BDAE93"},
			Border:             lipgloss.AdaptiveColor{Light: "#D5C4A1", Dark: "#504945"},
			SelectedBackground: lipgloss.AdaptiveColor{Light: "#F2E5BC", Dark: "#32302F"},
		}
	},
	// ANSI-friendly palette for terminals with their own color scheme.
	"terminal": func() Colors {
		return Colors{
			Green:              lipgloss.Color("2"),
			Yellow:             lipgloss.Color("3"),
			Red:                lipgloss.Color("1"),
			Orange:             lipgloss.Color("208"),
			Cyan:               lipgloss.Color("6"),
			Violet:             lipgloss.Color("5"),
			LightText:          lipgloss.Color("7"),
			MutedText:          lipgloss.Color("8"),
			Border:             lipgloss.Color("8"),
			SelectedBackground: lipgloss.Color("8"),
		}
	},
}

// DefaultTheme is the theme selected by CRYOVIEW_THEME or the `tui.theme` config key.
var DefaultTheme = NewThemeWithName(themeName())

// NewThemeWithName constructs a theme from a palette name, falling back to
// the default palette for unknown names.
func NewThemeWithName(name string) *Theme {
	build, ok := palettes[normalizeThemeName(name)]
	if !ok {
		build = palettes[defaultThemeName]
	}
	return newThemeFromColors(build())
}

// RenderStatus renders text with the appropriate status style.
func RenderStatus(status, text string) string {
	switch status {
	case "success":
		return DefaultTheme.Success.Render(text)
	case "error":
		return DefaultTheme.Error.Render(text)
	case "warning":
		return DefaultTheme.Warning.Render(text)
	case "info":
		return DefaultTheme.Info.Render(text)
	default:
		return text
	}
}

func newThemeFromColors(colors Colors) *Theme {
	return &Theme{
		Colors: colors,

		Header: lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Title:  lipgloss.NewStyle().Bold(true).Underline(true),

		Success: lipgloss.NewStyle().Foreground(colors.Green).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colors.Red).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true),
		Info:    lipgloss.NewStyle().Foreground(colors.Cyan).Bold(true),

		Bold:        lipgloss.NewStyle().Bold(true),
		Normal:      lipgloss.NewStyle(),
		Muted:       lipgloss.NewStyle().Faint(true),
		Path:        lipgloss.NewStyle().Foreground(colors.Cyan).Italic(true),
		SelectedRow: lipgloss.NewStyle().Background(colors.SelectedBackground),

		TableHeader: lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colors.Border),
		TableBorder: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colors.Border),

		Chip: lipgloss.NewStyle().
			Foreground(colors.LightText).
			Background(colors.SelectedBackground).
			Padding(0, 1),
		Highlight: lipgloss.NewStyle().Foreground(colors.Orange).Bold(true),
		Accent:    lipgloss.NewStyle().Foreground(colors.Violet).Bold(true),
	}
}

func normalizeThemeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	// Variants share one adaptive palette.
	if i := strings.IndexByte(normalized, '-'); i > 0 {
		normalized = normalized[:i]
	}
	return normalized
}

func themeName() string {
	if name := normalizeThemeName(os.Getenv("CRYOVIEW_THEME")); name != "" {
		return name
	}
	var tuiCfg struct {
		Theme string `yaml:"theme"`
	}
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("tui", &tuiCfg); err == nil && tuiCfg.Theme != "" {
			return tuiCfg.Theme
		}
	}
	return defaultThemeName
}
