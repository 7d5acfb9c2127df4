// Package output provides format and density types for dbtcov.
package output

import (
	"fmt"
	"strings"
)

// Format represents the output format type.
type Format string

const (
	// FormatText is the default human-readable table output
	FormatText Format = "text"

	// FormatJSON is the JSON output format
	FormatJSON Format = "json"

	// FormatYAML is the YAML output format
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format string into a Format value.
// Accepts: "text", "json", "yaml" (case-insensitive)
// Returns an error for invalid format values.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid format: %q (expected text, json, or yaml)", s)
	}
}

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// IsStructured returns true if this format marshals the report as a
// document instead of rendering tables.
func (f Format) IsStructured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Density represents the level of detail in output.
// Different density levels optimize for different use cases:
//   - Compact: summary and verdict only, for CI logs
//   - Normal: summary plus per-model rows (default)
//   - Verbose: full detail including per-column rows and loader diagnostics
type Density string

const (
	// DensityCompact provides summary-only output
	DensityCompact Density = "compact"

	// DensityNormal provides summary plus per-model detail (default)
	DensityNormal Density = "normal"

	// DensityVerbose provides full detail
	// Includes: everything in normal + per-column rows, diagnostics, filter echo
	DensityVerbose Density = "verbose"
)

// ParseDensity parses a density string into a Density value.
// Accepts: "compact", "normal", "verbose" (case-insensitive)
// Returns an error for invalid density values.
func ParseDensity(s string) (Density, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compact":
		return DensityCompact, nil
	case "normal":
		return DensityNormal, nil
	case "verbose":
		return DensityVerbose, nil
	default:
		return "", fmt.Errorf("invalid density: %q (expected compact, normal, or verbose)", s)
	}
}

// String returns the string representation of the density.
func (d Density) String() string {
	return string(d)
}

// IncludesModels returns true if this density level includes per-model rows.
func (d Density) IncludesModels() bool {
	return d == DensityNormal || d == DensityVerbose
}

// IncludesColumns returns true if this density level includes per-column rows.
func (d Density) IncludesColumns() bool {
	return d == DensityVerbose
}

// IncludesDiagnostics returns true if this density level includes loader
// diagnostics and the filter echo.
func (d Density) IncludesDiagnostics() bool {
	return d == DensityVerbose
}

// DefaultFormat is the default output format when none is specified.
const DefaultFormat = FormatText

// DefaultDensity is the default density level when none is specified.
const DefaultDensity = DensityNormal

// ValidateFormat checks if a format value is valid.
func ValidateFormat(f Format) bool {
	switch f {
	case FormatText, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// ValidateDensity checks if a density value is valid.
func ValidateDensity(d Density) bool {
	switch d {
	case DensityCompact, DensityNormal, DensityVerbose:
		return true
	default:
		return false
	}
}
