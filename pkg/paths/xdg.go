// Package paths resolves cryoview's on-disk locations.
//
// Resolution order:
// 1. CRYOVIEW_HOME (portable root) → $CRYOVIEW_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/cryoview
// 3. Platform defaults → ~/.config/cryoview, ~/.local/state/cryoview, etc.
package paths

import (
	"os"
	"path/filepath"
)

const (
	appName = "cryoview"
	homeEnv = "CRYOVIEW_HOME"
)

// xdgBase returns the base directory for one XDG category. sub is the
// directory used under CRYOVIEW_HOME, fallback is relative to the user's home.
func xdgBase(sub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, fallback...)...)
	}
	return ""
}

func appDir(base string) string {
	if base == "" {
		return ""
	}
	if os.Getenv(homeEnv) != "" {
		return base
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns the directory holding the global cryoview.yml.
func ConfigDir() string {
	return appDir(xdgBase("config", "XDG_CONFIG_HOME", ".config"))
}

// StateDir returns the directory for persisted view preferences, logs and the
// devserver pid file.
func StateDir() string {
	return appDir(xdgBase("state", "XDG_STATE_HOME", ".local", "state"))
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return appDir(xdgBase("cache", "XDG_CACHE_HOME", ".cache"))
}

// RuntimeDir returns the directory for runtime files.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// StateFilePath returns the path of the persisted filter preferences.
func StateFilePath() string {
	return filepath.Join(StateDir(), "state.yml")
}

// LogFilePath returns the default log file path.
func LogFilePath() string {
	return filepath.Join(StateDir(), "logs", appName+".log")
}

// PidFilePath returns the path to the devserver PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "devserver.pid")
}

// EnsureDirs creates all cryoview directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), RuntimeDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
