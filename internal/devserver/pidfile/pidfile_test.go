package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "devserver.pid")

	running, _, err := IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)

	require.NoError(t, Acquire(path, "127.0.0.1:8181"))
	running, info, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), info.PID)
	assert.Equal(t, "127.0.0.1:8181", info.Addr)

	err = Acquire(path, "127.0.0.1:9999")
	assert.ErrorContains(t, err, "already running")

	require.NoError(t, Release(path))
}

func TestStaleFileIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devserver.pid")
	// PIDs above the kernel maximum never exist.
	require.NoError(t, os.WriteFile(path, []byte("99999999\n:1\n"), 0644))

	require.NoError(t, Acquire(path, ":2"))
	info, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, ":2", info.Addr)
}
