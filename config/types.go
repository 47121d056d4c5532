package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

//go:generate go run ../tools/schema-generator -out cryoview.schema.json

// Config is the merged cryoview configuration.
type Config struct {
	Version   string          `yaml:"version" toml:"version" jsonschema:"description=Configuration version (e.g. '1.0')"`
	Server    ServerConfig    `yaml:"server,omitempty" toml:"server,omitempty" jsonschema:"description=Connection to the diagnostics service"`
	Views     ViewsConfig     `yaml:"views,omitempty" toml:"views,omitempty" jsonschema:"description=Defaults for live collection views"`
	Devserver DevserverConfig `yaml:"devserver,omitempty" toml:"devserver,omitempty" jsonschema:"description=Settings for the simulated development backend"`

	// Extensions captures all other top-level keys (logging, for example).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" jsonschema:"-"`
}

// ServerConfig describes how to reach the diagnostics service.
type ServerConfig struct {
	URL        string `yaml:"url,omitempty" toml:"url,omitempty" jsonschema:"description=Base URL of the diagnostics service"`
	Token      string `yaml:"token,omitempty" toml:"token,omitempty" jsonschema:"description=Bearer token sent with every request"`
	Timeout    string `yaml:"timeout,omitempty" toml:"timeout,omitempty" jsonschema:"description=HTTP request timeout (Go duration)"`
	MaxRetries int    `yaml:"max_retries,omitempty" toml:"max_retries,omitempty" jsonschema:"description=Retries for idempotent requests that fail with 5xx or 429"`
}

// ViewsConfig holds the defaults applied to every live view.
type ViewsConfig struct {
	PollInterval string `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" jsonschema:"description=Polling interval while a collection contains in-progress items"`
	// RefreshInterval is the minimum spacing between manual refreshes.
	RefreshInterval string `yaml:"refresh_interval,omitempty" toml:"refresh_interval,omitempty" jsonschema:"description=Minimum spacing between manual refreshes"`
	BufferLimit     int    `yaml:"buffer_limit,omitempty" toml:"buffer_limit,omitempty" jsonschema:"description=Maximum events buffered while a snapshot is loading"`
	// Filters maps a collection name to its default predicate set.
	Filters map[string]map[string][]string `yaml:"filters,omitempty" toml:"filters,omitempty" jsonschema:"description=Default filters per collection (category to accepted values)"`
}

// DevserverConfig configures the simulated backend.
type DevserverConfig struct {
	Addr              string `yaml:"addr,omitempty" toml:"addr,omitempty" jsonschema:"description=Listen address"`
	Token             string `yaml:"token,omitempty" toml:"token,omitempty" jsonschema:"description=Bearer token required by the API (empty disables auth)"`
	Targets           int    `yaml:"targets,omitempty" toml:"targets,omitempty" jsonschema:"description=Number of simulated JVM targets"`
	DiscoveryInterval string `yaml:"discovery_interval,omitempty" toml:"discovery_interval,omitempty" jsonschema:"description=How often targets appear or disappear"`
	RecordingInterval string `yaml:"recording_interval,omitempty" toml:"recording_interval,omitempty" jsonschema:"description=How often running recordings are checked for completion"`
	RuleInterval      string `yaml:"rule_interval,omitempty" toml:"rule_interval,omitempty" jsonschema:"description=How often enabled rules archive recordings"`
}

const (
	DefaultVersion         = "1.0"
	DefaultServerURL       = "http://127.0.0.1:8181"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 2
	DefaultPollInterval    = 5 * time.Second
	DefaultRefreshInterval = time.Second
	DefaultBufferLimit     = 10000
	DefaultDevserverAddr   = "127.0.0.1:8181"
	DefaultTargets         = 3
)

// SetDefaults sets default values for configuration
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.Timeout == "" {
		c.Server.Timeout = DefaultTimeout.String()
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = DefaultMaxRetries
	}
	if c.Views.PollInterval == "" {
		c.Views.PollInterval = DefaultPollInterval.String()
	}
	if c.Views.RefreshInterval == "" {
		c.Views.RefreshInterval = DefaultRefreshInterval.String()
	}
	if c.Views.BufferLimit == 0 {
		c.Views.BufferLimit = DefaultBufferLimit
	}
	if c.Devserver.Addr == "" {
		c.Devserver.Addr = DefaultDevserverAddr
	}
	if c.Devserver.Targets == 0 {
		c.Devserver.Targets = DefaultTargets
	}
	if c.Devserver.DiscoveryInterval == "" {
		c.Devserver.DiscoveryInterval = "20s"
	}
	if c.Devserver.RecordingInterval == "" {
		c.Devserver.RecordingInterval = "1s"
	}
	if c.Devserver.RuleInterval == "" {
		c.Devserver.RuleInterval = "30s"
	}
}

// Duration parses a duration field, returning fallback when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded cryoview.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// Absent sections leave target zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}

// ConfigSource identifies the origin of a configuration value.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceGlobal   ConfigSource = "global"
	SourceProject  ConfigSource = "project"
	SourceOverride ConfigSource = "override"
)

// OverrideSource holds a raw configuration from an override file and its path.
type OverrideSource struct {
	Path   string
	Config *Config
}

// LayeredConfig holds the raw configuration from each source file,
// along with the final merged result.
type LayeredConfig struct {
	Default   *Config
	Global    *Config
	Project   *Config
	Overrides []OverrideSource
	Final     *Config
	FilePaths map[ConfigSource]string
}
