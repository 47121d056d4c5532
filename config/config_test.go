package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/grovetools/cryoview/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("CRYOVIEW_HOME", filepath.Join(root, "home"))
	return root
}

func TestLoadFromBytes(t *testing.T) {
	t.Setenv("CRYOVIEW_TEST_TOKEN", "secret")

	cfg, err := LoadFromBytes([]byte(`
version: "1.0"
server:
  url: https://diag.example.com
  token: ${CRYOVIEW_TEST_TOKEN}
views:
  poll_interval: 2s
  filters:
    active-recordings:
      State: [RUNNING]
logging:
  level: debug
`), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "https://diag.example.com", cfg.Server.URL)
	assert.Equal(t, "secret", cfg.Server.Token)
	assert.Equal(t, 2*time.Second, Duration(cfg.Views.PollInterval, DefaultPollInterval))
	assert.Equal(t, []string{"RUNNING"}, cfg.Views.Filters["active-recordings"]["State"])
	assert.Equal(t, DefaultBufferLimit, cfg.Views.BufferLimit)
	assert.Contains(t, cfg.Extensions, "logging")
}

func TestLoadFromBytesTOML(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(`
version = "1.0"

[server]
url = "http://localhost:9000"
max_retries = 4

[devserver]
targets = 7
`), "toml")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", cfg.Server.URL)
	assert.Equal(t, 4, cfg.Server.MaxRetries)
	assert.Equal(t, 7, cfg.Devserver.Targets)
}

func TestEnvDefaultValue(t *testing.T) {
	os.Unsetenv("CRYOVIEW_UNSET_VAR")
	assert.Equal(t, "http://fallback:1", expandEnvVars("${CRYOVIEW_UNSET_VAR:-http://fallback:1}"))
}

func TestLoadRejectsUnknownSectionFields(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
server:
  url: http://localhost
  unknown_field: true
`), "yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
views:
  poll_interval: soon
`), "yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConfigValidation))
}

func TestLoadWithoutAnyFilesUsesDefaults(t *testing.T) {
	root := isolate(t)

	cfg, err := LoadFrom(root)
	require.NoError(t, err)
	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
	assert.Equal(t, DefaultVersion, cfg.Version)
}

func TestFindConfigFileWalksUp(t *testing.T) {
	root := isolate(t)
	writeFile(t, filepath.Join(root, "proj", "cryoview.yml"), "version: \"1.0\"\n")
	nested := filepath.Join(root, "proj", "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	path, err := FindConfigFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "proj", "cryoview.yml"), path)

	_, err = FindConfigFile(t.TempDir())
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeConfigNotFound))
}
