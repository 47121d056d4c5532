package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/pkg/paths"
	"github.com/grovetools/cryoview/schema"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// configNames lists project config file names in lookup order.
var configNames = []string{
	"cryoview.yml",
	"cryoview.yaml",
	"cryoview.toml",
	".cryoview.yml",
	".cryoview.yaml",
}

// overrideNames lists local override files applied after the project layer.
var overrideNames = []string{
	"cryoview.override.yml",
	"cryoview.override.yaml",
	".cryoview.override.yml",
	".cryoview.override.yaml",
}

var (
	layerValidator     *schema.Validator
	layerValidatorErr  error
	layerValidatorOnce sync.Once
)

// Load reads and parses a single configuration file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := readLayer(path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Global config (~/.config/cryoview/cryoview.yml) - base layer
// 2. Project config (cryoview.yml, nearest ancestor of cwd) - overrides global
// 3. Local override (cryoview.override.yml) - overrides all
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}
	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging.
// Every layer is optional; with no files at all the defaults are returned.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	layered, err := loadLayers(startDir, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("Configuration loaded and validated successfully")
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(layered.Final); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}
	return layered.Final, nil
}

// LoadLayered loads all configuration layers without merging them, for
// analysis purposes. It also computes the final merged config.
func LoadLayered(startDir string) (*LayeredConfig, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return loadLayers(startDir, logger)
}

func loadLayers(startDir string, logger *logrus.Logger) (*LayeredConfig, error) {
	layered := &LayeredConfig{
		Overrides: make([]OverrideSource, 0),
		FilePaths: make(map[ConfigSource]string),
	}

	defaults := &Config{}
	defaults.SetDefaults()
	layered.Default = defaults

	final := &Config{}

	// 1. Global layer; unreadable global files are skipped with a warning
	if globalPath := GlobalConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			globalCfg, err := readLayer(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to load global configuration, continuing without it")
			} else {
				layered.Global = globalCfg
				layered.FilePaths[SourceGlobal] = globalPath
				final = mergeConfigs(final, globalCfg)
			}
		}
	}

	// 2. Project layer
	projectDir := startDir
	if projectPath, err := FindConfigFile(startDir); err == nil {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		projectCfg, err := readLayer(projectPath)
		if err != nil {
			return nil, err
		}
		layered.Project = projectCfg
		layered.FilePaths[SourceProject] = projectPath
		final = mergeConfigs(final, projectCfg)
		projectDir = filepath.Dir(projectPath)
	}

	// 3. Overrides next to the project file (or in startDir)
	for _, name := range overrideNames {
		overridePath := filepath.Join(projectDir, name)
		if _, err := os.Stat(overridePath); err != nil {
			continue
		}
		logger.WithField("path", overridePath).Debug("Loading local override configuration")
		overrideCfg, err := readLayer(overridePath)
		if err != nil {
			logger.WithError(err).Warn("Failed to load override file, skipping")
			continue
		}
		layered.Overrides = append(layered.Overrides, OverrideSource{Path: overridePath, Config: overrideCfg})
		layered.FilePaths[SourceOverride] = overridePath
		final = mergeConfigs(final, overrideCfg)
	}

	final.SetDefaults()
	if err := final.Validate(); err != nil {
		return nil, err
	}
	layered.Final = final
	return layered, nil
}

// LoadFromBytes parses a YAML (or TOML, when format is "toml") document,
// applying defaults and validation.
func LoadFromBytes(data []byte, format string) (*Config, error) {
	cfg, err := parseLayer(data, format, "<bytes>")
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindConfigFile searches for a project configuration file from startDir up
// to the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// GlobalConfigPath returns the path of the global configuration file.
func GlobalConfigPath() string {
	dir := paths.ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "cryoview.yml")
}

func readLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}
	format := "yaml"
	if strings.HasSuffix(path, ".toml") {
		format = "toml"
	}
	return parseLayer(data, format, path)
}

// parseLayer decodes one raw layer, validating it against the generated schema.
// TOML documents are normalized through a generic map so a single YAML
// decoder (with its inline extension capture) handles both formats.
func parseLayer(data []byte, format, source string) (*Config, error) {
	expanded := []byte(expandEnvVars(string(data)))

	var raw map[string]interface{}
	switch format {
	case "toml":
		if err := toml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration").
				WithDetail("path", source)
		}
		normalized, err := yaml.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to normalize TOML configuration").
				WithDetail("path", source)
		}
		expanded = normalized
	default:
		if err := yaml.Unmarshal(expanded, &raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration").
				WithDetail("path", source)
		}
	}

	if raw != nil {
		if err := validateLayer(raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "configuration does not match schema").
				WithDetail("path", source)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration").
			WithDetail("path", source)
	}
	return &cfg, nil
}

func validateLayer(raw map[string]interface{}) error {
	layerValidatorOnce.Do(func() {
		var data []byte
		data, layerValidatorErr = GenerateSchema()
		if layerValidatorErr != nil {
			return
		}
		layerValidator, layerValidatorErr = schema.Compile("cryoview.schema.json", data)
	})
	if layerValidatorErr != nil {
		return layerValidatorErr
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return layerValidator.ValidateJSON(doc)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
