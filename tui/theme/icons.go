package theme

import (
	"os"

	"github.com/grovetools/cryoview/config"
)

// iconSet groups every icon cryoview renders so nerd-font and ASCII sets
// can be swapped in one assignment.
type iconSet struct {
	success, err, warning, info       string
	running, pending, stopped, failed string
	selected, unselected              string
	archive, filter, search, target   string
	connected, disconnected           string
}

var nerdIcons = iconSet{
	success:      "󰄬", // md-check
	err:          "\uea87", // cod-error
	warning:      "\uf071", // fa-warning
	info:         "󰋼", // md-information
	running:      "󰔟", // md-timer_sand
	pending:      "󰦖", // md-progress_clock
	stopped:      "󰄳", // md-checkbox_marked_circle
	failed:       "\uf467", // oct-x
	selected:     "󰱒", // md-checkbox_outline
	unselected:   "󰄱", // md-checkbox_blank_outline
	archive:      "󰀼", // md-archive
	filter:       "󱣬", // md-filter_check
	search:       "\uf002", // fa-search
	target:       "\uf0f4", // fa-coffee
	connected:    "󰖟", // md-web
	disconnected: "󰪎", // md-web_off
}

var asciiIcons = iconSet{
	success:      "✓",
	err:          "✗",
	warning:      "⚠",
	info:         "ℹ",
	running:      "◐",
	pending:      "…",
	stopped:      "●",
	failed:       "✗",
	selected:     "[x]",
	unselected:   "[ ]",
	archive:      "▣",
	filter:       "≡",
	search:       "/",
	target:       "◆",
	connected:    "+",
	disconnected: "-",
}

// Exported icons, resolved once at startup from CRYOVIEW_ICONS or the `tui.icons` config key.
var (
	IconSuccess      string
	IconError        string
	IconWarning      string
	IconInfo         string
	IconRunning      string
	IconPending      string
	IconStopped      string
	IconFailed       string
	IconSelected     string
	IconUnselected   string
	IconArchive      string
	IconFilter       string
	IconSearch       string
	IconTarget       string
	IconConnected    string
	IconDisconnected string
)

func init() {
	set := nerdIcons
	if iconsSetting() == "ascii" {
		set = asciiIcons
	}
	applyIcons(set)
}

func iconsSetting() string {
	if v := os.Getenv("CRYOVIEW_ICONS"); v != "" {
		return v
	}
	var tuiCfg struct {
		Icons string `yaml:"icons"`
	}
	if cfg, err := config.LoadDefault(); err == nil {
		_ = cfg.UnmarshalExtension("tui", &tuiCfg)
	}
	return tuiCfg.Icons
}

func applyIcons(s iconSet) {
	IconSuccess, IconError, IconWarning, IconInfo = s.success, s.err, s.warning, s.info
	IconRunning, IconPending, IconStopped, IconFailed = s.running, s.pending, s.stopped, s.failed
	IconSelected, IconUnselected = s.selected, s.unselected
	IconArchive, IconFilter, IconSearch, IconTarget = s.archive, s.filter, s.search, s.target
	IconConnected, IconDisconnected = s.connected, s.disconnected
}
