// Package pidfile records the running development server so that later
// invocations can report on it or stop it.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grovetools/cryoview/pkg/process"
)

// Info is what the pid file holds.
type Info struct {
	PID  int
	Addr string
}

// Acquire writes the current PID and listen address to the file.
// It returns an error if another instance is already running.
func Acquire(path, addr string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	if info, err := Read(path); err == nil {
		if process.IsProcessAlive(info.PID) {
			return fmt.Errorf("devserver already running with PID %d on %s", info.PID, info.Addr)
		}
		// Stale file from a crashed run.
		_ = os.Remove(path)
	}

	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), addr)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// Release removes the PID file.
func Release(path string) error {
	return os.Remove(path)
}

// Read parses the pid file.
func Read(path string) (Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return Info{}, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	info := Info{PID: pid}
	if len(lines) > 1 {
		info.Addr = strings.TrimSpace(lines[1])
	}
	return info, nil
}

// IsRunning reports whether the server recorded in path is alive.
func IsRunning(path string) (bool, Info, error) {
	info, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, Info{}, nil
		}
		return false, Info{}, err
	}
	return process.IsProcessAlive(info.PID), info, nil
}
