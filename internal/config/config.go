package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the name of the dbtcov configuration file
const ConfigFileName = "config.yaml"

// ConfigDirName is the name of the dbtcov configuration directory
const ConfigDirName = ".dbtcov"

// Config holds all dbtcov configuration
type Config struct {
	Manifest   ManifestConfig   `yaml:"manifest"`
	Filters    FiltersConfig    `yaml:"filters"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Output     OutputConfig     `yaml:"output"`
	History    HistoryConfig    `yaml:"history"`
}

// ManifestConfig holds configuration for locating the dbt manifest
type ManifestConfig struct {
	// Path points at manifest.json; empty means auto-discovery
	// relative to the working directory.
	Path string `yaml:"path"`

	// Package is the default package filter applied when no
	// --package flag is given.
	Package string `yaml:"package"`
}

// FiltersConfig holds model filters applied to every run
type FiltersConfig struct {
	Tags        []string `yaml:"tags"`
	TagMode     string   `yaml:"tag_mode"`
	ExcludeTags []string `yaml:"exclude_tags"`
	TestType    string   `yaml:"test_type"`
}

// ThresholdsConfig holds coverage minimums enforced by the check command.
// A nil entry is not evaluated.
type ThresholdsConfig struct {
	ColumnTest *float64 `yaml:"column_test,omitempty"`
	UnitTest   *float64 `yaml:"unit_test,omitempty"`
	Contract   *float64 `yaml:"contract,omitempty"`
}

// OutputConfig holds configuration for output formatting
type OutputConfig struct {
	DefaultFormat  string `yaml:"default_format"`
	DefaultDensity string `yaml:"default_density"`
}

// HistoryConfig holds configuration for the run history store
type HistoryConfig struct {
	// Disabled switches off run recording entirely.
	Disabled bool `yaml:"disabled"`

	// Keep caps how many runs are retained; 0 keeps everything.
	Keep int `yaml:"keep"`
}

// ErrConfigNotFound is returned when no config file can be found
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when config validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads config from .dbtcov/config.yaml, falling back to defaults.
// It searches for the config directory starting from workDir and walking up
// the directory tree. If no config is found, returns defaults.
func Load(workDir string) (*Config, error) {
	configDir, err := FindConfigDir(workDir)
	if err != nil {
		// No config dir found, return defaults
		return DefaultConfig(), nil
	}

	configPath := filepath.Join(configDir, ConfigFileName)
	return LoadFromPath(configPath)
}

// LoadFromPath reads config from a specific path.
// Merges loaded config with defaults and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loaded := &Config{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Merge with defaults
	merged := Merge(loaded, DefaultConfig())

	// Validate the merged config
	if err := Validate(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// FindConfigDir locates the .dbtcov directory by walking up from startDir.
// Returns the path to the .dbtcov directory if found.
func FindConfigDir(startDir string) (string, error) {
	// Get absolute path
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	currentDir := absDir
	for {
		configDir := filepath.Join(currentDir, ConfigDirName)
		info, err := os.Stat(configDir)
		if err == nil && info.IsDir() {
			return configDir, nil
		}

		// Move to parent directory
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root, config not found
			return "", ErrConfigNotFound
		}
		currentDir = parentDir
	}
}

// EnsureConfigDir creates the .dbtcov directory if it doesn't exist.
// Returns the path to the .dbtcov directory.
func EnsureConfigDir(workDir string) (string, error) {
	// Get absolute path
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	configDir := filepath.Join(absDir, ConfigDirName)

	// Check if it already exists
	info, err := os.Stat(configDir)
	if err == nil {
		if info.IsDir() {
			return configDir, nil
		}
		return "", fmt.Errorf("%s exists but is not a directory", configDir)
	}

	// Create the directory
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return configDir, nil
}

// Validate checks that config values are valid.
// Returns an error if validation fails.
func Validate(cfg *Config) error {
	// Validate output format
	if !IsValidFormat(cfg.Output.DefaultFormat) {
		return fmt.Errorf("%w: default_format must be one of %v, got %q",
			ErrInvalidConfig, ValidFormats, cfg.Output.DefaultFormat)
	}

	// Validate density
	if !IsValidDensity(cfg.Output.DefaultDensity) {
		return fmt.Errorf("%w: default_density must be one of %v, got %q",
			ErrInvalidConfig, ValidDensities, cfg.Output.DefaultDensity)
	}

	// Validate tag mode
	if cfg.Filters.TagMode != "all" && cfg.Filters.TagMode != "any" {
		return fmt.Errorf("%w: tag_mode must be all or any, got %q",
			ErrInvalidConfig, cfg.Filters.TagMode)
	}

	// Validate test type
	switch cfg.Filters.TestType {
	case "all", "generic", "singular":
	default:
		return fmt.Errorf("%w: test_type must be singular, generic, or all, got %q",
			ErrInvalidConfig, cfg.Filters.TestType)
	}

	// Validate thresholds (should be between 0 and 100)
	if t := cfg.Thresholds.ColumnTest; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("%w: column_test threshold must be between 0 and 100, got %f",
			ErrInvalidConfig, *t)
	}
	if t := cfg.Thresholds.UnitTest; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("%w: unit_test threshold must be between 0 and 100, got %f",
			ErrInvalidConfig, *t)
	}
	if t := cfg.Thresholds.Contract; t != nil && (*t < 0 || *t > 100) {
		return fmt.Errorf("%w: contract threshold must be between 0 and 100, got %f",
			ErrInvalidConfig, *t)
	}

	// Validate history retention (should be non-negative)
	if cfg.History.Keep < 0 {
		return fmt.Errorf("%w: history keep must be non-negative, got %d",
			ErrInvalidConfig, cfg.History.Keep)
	}

	return nil
}

// SaveDefault writes the default configuration to .dbtcov/config.yaml in workDir.
// Creates the .dbtcov directory if it doesn't exist.
func SaveDefault(workDir string) (string, error) {
	configDir, err := EnsureConfigDir(workDir)
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(configDir, ConfigFileName)

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return "", fmt.Errorf("config file already exists: %s", configPath)
	}

	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	// Add header comment
	header := "# dbtcov configuration\n# See https://github.com/hargabyte/dbtcov for documentation\n\n"
	data = append([]byte(header), data...)

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return configPath, nil
}
