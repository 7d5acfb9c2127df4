package config

// DefaultConfig returns configuration with sensible defaults.
// These defaults are used when no config file exists or when
// config file is missing specific fields.
func DefaultConfig() *Config {
	return &Config{
		Filters: FiltersConfig{
			TagMode:  "all",
			TestType: "all",
		},
		Output: OutputConfig{
			DefaultFormat:  "text",
			DefaultDensity: "normal",
		},
		History: HistoryConfig{
			Keep: 50,
		},
	}
}

// Merge merges loaded config with defaults.
// Values from loaded config take precedence over defaults.
// Returns a new Config with merged values.
func Merge(loaded, defaults *Config) *Config {
	result := &Config{}

	// Merge Manifest config
	result.Manifest = mergeManifestConfig(loaded.Manifest, defaults.Manifest)

	// Merge Filters config
	result.Filters = mergeFiltersConfig(loaded.Filters, defaults.Filters)

	// Merge Thresholds config
	result.Thresholds = mergeThresholdsConfig(loaded.Thresholds, defaults.Thresholds)

	// Merge Output config
	result.Output = mergeOutputConfig(loaded.Output, defaults.Output)

	// Merge History config
	result.History = mergeHistoryConfig(loaded.History, defaults.History)

	return result
}

func mergeManifestConfig(loaded, defaults ManifestConfig) ManifestConfig {
	result := ManifestConfig{}

	// Path: use loaded if non-empty
	if loaded.Path != "" {
		result.Path = loaded.Path
	} else {
		result.Path = defaults.Path
	}

	// Package: use loaded if non-empty
	if loaded.Package != "" {
		result.Package = loaded.Package
	} else {
		result.Package = defaults.Package
	}

	return result
}

func mergeFiltersConfig(loaded, defaults FiltersConfig) FiltersConfig {
	result := FiltersConfig{}

	// Use loaded tags if provided, otherwise defaults
	if len(loaded.Tags) > 0 {
		result.Tags = loaded.Tags
	} else {
		result.Tags = defaults.Tags
	}

	// TagMode: use loaded if non-empty
	if loaded.TagMode != "" {
		result.TagMode = loaded.TagMode
	} else {
		result.TagMode = defaults.TagMode
	}

	// Use loaded exclude tags if provided, otherwise defaults
	if len(loaded.ExcludeTags) > 0 {
		result.ExcludeTags = loaded.ExcludeTags
	} else {
		result.ExcludeTags = defaults.ExcludeTags
	}

	// TestType: use loaded if non-empty
	if loaded.TestType != "" {
		result.TestType = loaded.TestType
	} else {
		result.TestType = defaults.TestType
	}

	return result
}

func mergeThresholdsConfig(loaded, defaults ThresholdsConfig) ThresholdsConfig {
	result := ThresholdsConfig{}

	// Each threshold: use loaded if supplied
	if loaded.ColumnTest != nil {
		result.ColumnTest = loaded.ColumnTest
	} else {
		result.ColumnTest = defaults.ColumnTest
	}

	if loaded.UnitTest != nil {
		result.UnitTest = loaded.UnitTest
	} else {
		result.UnitTest = defaults.UnitTest
	}

	if loaded.Contract != nil {
		result.Contract = loaded.Contract
	} else {
		result.Contract = defaults.Contract
	}

	return result
}

func mergeOutputConfig(loaded, defaults OutputConfig) OutputConfig {
	result := OutputConfig{}

	// DefaultFormat: use loaded if non-empty
	if loaded.DefaultFormat != "" {
		result.DefaultFormat = loaded.DefaultFormat
	} else {
		result.DefaultFormat = defaults.DefaultFormat
	}

	// DefaultDensity: use loaded if non-empty
	if loaded.DefaultDensity != "" {
		result.DefaultDensity = loaded.DefaultDensity
	} else {
		result.DefaultDensity = defaults.DefaultDensity
	}

	return result
}

func mergeHistoryConfig(loaded, defaults HistoryConfig) HistoryConfig {
	result := HistoryConfig{}

	// Disabled: recording stays on unless explicitly switched off
	result.Disabled = loaded.Disabled

	// Keep: use loaded if non-zero
	if loaded.Keep != 0 {
		result.Keep = loaded.Keep
	} else {
		result.Keep = defaults.Keep
	}

	return result
}

// ValidFormats lists the valid values for output format
var ValidFormats = []string{"text", "json", "yaml"}

// IsValidFormat checks if the given format value is valid
func IsValidFormat(format string) bool {
	for _, valid := range ValidFormats {
		if format == valid {
			return true
		}
	}
	return false
}

// ValidDensities lists the valid values for output density
var ValidDensities = []string{"compact", "normal", "verbose"}

// IsValidDensity checks if the given density value is valid
func IsValidDensity(density string) bool {
	for _, valid := range ValidDensities {
		if density == valid {
			return true
		}
	}
	return false
}
