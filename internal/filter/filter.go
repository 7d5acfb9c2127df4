// Package filter reduces a manifest's model set to the models matching
// package, name pattern, path pattern, and tag criteria.
package filter

import (
	"strings"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

// TagMode controls how required tags are matched against a model.
type TagMode string

const (
	// TagModeAll requires the model to carry every requested tag.
	TagModeAll TagMode = "all"
	// TagModeAny requires at least one requested tag on the model.
	TagModeAny TagMode = "any"
)

// Criteria is an immutable set of model filters. Zero-valued fields
// impose no constraint; configured criteria are conjunctive with each
// other, only the tag criterion has an internal all/any mode.
type Criteria struct {
	Package      string   // Exact package name
	NamePatterns []string // Patterns matched against model names, any may hit
	PathPatterns []string // Patterns matched against file paths, any may hit
	Tags         []string // Required tags; entries may be comma-separated lists
	TagMode      TagMode  // Empty means TagModeAll
	ExcludeTags  []string // Tags that reject a model outright
}

// Apply returns the models satisfying every configured criterion. The
// result preserves input order, contains no duplicates, and is a view
// over the same entities: the input is never mutated or copied. An
// empty result is valid.
func Apply(models []*manifest.Model, c Criteria) []*manifest.Model {
	required := splitTags(c.Tags)
	excluded := splitTags(c.ExcludeTags)
	mode := c.TagMode
	if mode == "" {
		mode = TagModeAll
	}

	matched := make([]*manifest.Model, 0, len(models))
	for _, model := range models {
		if c.Package != "" && model.Package != c.Package {
			continue
		}
		if len(c.NamePatterns) > 0 && !matchAny(c.NamePatterns, model.Name) {
			continue
		}
		if len(c.PathPatterns) > 0 && !matchAny(c.PathPatterns, model.Path) {
			continue
		}
		if len(required) > 0 && !matchTags(model.Tags, required, mode) {
			continue
		}
		if len(excluded) > 0 && intersects(model.Tags, excluded) {
			continue
		}
		matched = append(matched, model)
	}
	return matched
}

// Match reports whether name matches pattern. Patterns are glob-style
// and case-sensitive: * matches any run of characters including path
// separators, ? matches a single character, everything else is literal.
func Match(pattern, name string) bool {
	p := []rune(pattern)
	n := []rune(name)

	var pi, ni int
	starP, starN := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			// Remember the star so we can widen its match later.
			starP = pi
			starN = ni
			pi++
		case starP >= 0:
			pi = starP + 1
			starN++
			ni = starN
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if Match(pattern, name) {
			return true
		}
	}
	return false
}

func matchTags(have, want []string, mode TagMode) bool {
	if mode == TagModeAny {
		return intersects(have, want)
	}
	for _, tag := range want {
		if !contains(have, tag) {
			return false
		}
	}
	return true
}

// splitTags normalizes tag arguments: each entry may itself be a
// comma-separated list, as passed on the command line.
func splitTags(entries []string) []string {
	var tags []string
	for _, entry := range entries {
		for _, tag := range strings.Split(entry, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func contains(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, entry := range a {
		if contains(b, entry) {
			return true
		}
	}
	return false
}
