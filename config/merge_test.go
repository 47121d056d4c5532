package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHierarchicalMerging tests the three-level configuration merge:
// global -> project -> override
func TestHierarchicalMerging(t *testing.T) {
	root := isolate(t)

	writeFile(t, GlobalConfigPath(), `
server:
  url: https://global.example.com
  token: global-token
views:
  poll_interval: 10s
  filters:
    rules:
      Enabled: ["true"]
logging:
  level: warn
  report_caller: true
`)

	projectDir := filepath.Join(root, "project")
	writeFile(t, filepath.Join(projectDir, "cryoview.yml"), `
server:
  url: https://project.example.com
views:
  filters:
    active-recordings:
      Name: [profiling]
logging:
  level: info
`)

	writeFile(t, filepath.Join(projectDir, "cryoview.override.yml"), `
server:
  token: override-token
`)

	layered, err := LoadLayered(projectDir)
	require.NoError(t, err)
	require.NotNil(t, layered.Global)
	require.NotNil(t, layered.Project)
	require.Len(t, layered.Overrides, 1)
	assert.Equal(t, filepath.Join(projectDir, "cryoview.yml"), layered.FilePaths[SourceProject])

	cfg := layered.Final
	assert.Equal(t, "https://project.example.com", cfg.Server.URL)
	assert.Equal(t, "override-token", cfg.Server.Token)
	assert.Equal(t, "10s", cfg.Views.PollInterval)
	assert.Equal(t, []string{"true"}, cfg.Views.Filters["rules"]["Enabled"])
	assert.Equal(t, []string{"profiling"}, cfg.Views.Filters["active-recordings"]["Name"])

	logging, ok := cfg.Extensions["logging"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "info", logging["level"])
	assert.Equal(t, true, logging["report_caller"])
}

func TestMergeReplacesFilterSetPerCollection(t *testing.T) {
	base := &Config{Views: ViewsConfig{Filters: map[string]map[string][]string{
		"rules": {"Name": {"a"}, "Enabled": {"true"}},
	}}}
	override := &Config{Views: ViewsConfig{Filters: map[string]map[string][]string{
		"rules": {"Name": {"b"}},
	}}}

	merged := mergeConfigs(base, override)
	assert.Equal(t, map[string][]string{"Name": {"b"}}, merged.Views.Filters["rules"])
	// base untouched
	assert.Len(t, base.Views.Filters["rules"], 2)
}

func TestUnmarshalExtension(t *testing.T) {
	cfg := &Config{Extensions: map[string]interface{}{
		"logging": map[string]interface{}{"level": "debug", "report_caller": true},
	}}

	var target struct {
		Level        string `yaml:"level"`
		ReportCaller bool   `yaml:"report_caller"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &target))
	assert.Equal(t, "debug", target.Level)
	assert.True(t, target.ReportCaller)

	require.NoError(t, cfg.UnmarshalExtension("missing", &target))
}
