package manifest

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when no manifest can be located automatically.
var ErrNotFound = errors.New("manifest not found")

// searchPaths are probed relative to the working directory, nearest
// first, matching where dbt writes its target artifacts.
var searchPaths = []string{
	"target/manifest.json",
	"../target/manifest.json",
	"../../target/manifest.json",
}

// Discover probes the conventional dbt target locations under dir and
// returns the first manifest path that exists.
func Discover(dir string) (string, error) {
	for _, rel := range searchPaths {
		path := filepath.Join(dir, rel)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNotFound
}
