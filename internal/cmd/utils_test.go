package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/manifest"
)

// thresholdFlagSet builds a scratch command carrying the threshold
// flags the way report and check declare them.
func thresholdFlagSet() *cobra.Command {
	cmd := &cobra.Command{Use: "scratch"}
	cmd.Flags().Float64("column-test-threshold", 0, "")
	cmd.Flags().Float64("unit-test-threshold", 0, "")
	cmd.Flags().Float64("contract-threshold", 0, "")
	return cmd
}

func TestFlagThresholds(t *testing.T) {
	t.Run("no flags set means no thresholds", func(t *testing.T) {
		cmd := thresholdFlagSet()
		if err := cmd.Flags().Parse(nil); err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		th := flagThresholds(cmd, 0, 0, 0)
		if th.Any() {
			t.Errorf("expected no thresholds, got %+v", th)
		}
	})

	t.Run("only supplied flags participate", func(t *testing.T) {
		cmd := thresholdFlagSet()
		if err := cmd.Flags().Parse([]string{"--unit-test-threshold", "80"}); err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		unit, _ := cmd.Flags().GetFloat64("unit-test-threshold")
		th := flagThresholds(cmd, 0, unit, 0)
		if th.UnitTest == nil || *th.UnitTest != 80 {
			t.Errorf("expected unit threshold 80, got %v", th.UnitTest)
		}
		if th.ColumnTest != nil || th.Contract != nil {
			t.Errorf("expected untouched axes to stay nil, got %+v", th)
		}
	})

	t.Run("zero is a real threshold when supplied", func(t *testing.T) {
		cmd := thresholdFlagSet()
		if err := cmd.Flags().Parse([]string{"--column-test-threshold", "0"}); err != nil {
			t.Fatalf("parse failed: %v", err)
		}

		column, _ := cmd.Flags().GetFloat64("column-test-threshold")
		th := flagThresholds(cmd, column, 0, 0)
		if th.ColumnTest == nil || *th.ColumnTest != 0 {
			t.Errorf("expected explicit zero threshold, got %v", th.ColumnTest)
		}
	})
}

func TestResolveManifestPath(t *testing.T) {
	t.Run("flag wins over config", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Manifest.Path = "build/manifest.json"

		path, err := resolveManifestPath("other/manifest.json", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "other/manifest.json" {
			t.Errorf("expected flag path, got %s", path)
		}
	})

	t.Run("config path when no flag", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Manifest.Path = "build/manifest.json"

		path, err := resolveManifestPath("", cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != "build/manifest.json" {
			t.Errorf("expected config path, got %s", path)
		}
	})

	t.Run("discovers target directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(tmpDir, "target"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmpDir, "target", "manifest.json"), []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}

		origDir, _ := os.Getwd()
		defer os.Chdir(origDir)
		os.Chdir(tmpDir)

		path, err := resolveManifestPath("", config.DefaultConfig())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if path != filepath.Join("target", "manifest.json") {
			t.Errorf("expected discovered path, got %s", path)
		}
	})

	t.Run("not found maps to exit 2", func(t *testing.T) {
		origDir, _ := os.Getwd()
		defer os.Chdir(origDir)
		os.Chdir(t.TempDir())

		_, err := resolveManifestPath("", config.DefaultConfig())
		if !errors.Is(err, manifest.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if exitStatus(err) != 2 {
			t.Errorf("expected exit status 2, got %d", exitStatus(err))
		}
	})
}

func TestCriteriaFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Manifest.Package = "shop"
	cfg.Filters.Tags = []string{"gold"}
	cfg.Filters.TagMode = "any"
	cfg.Filters.ExcludeTags = []string{"deprecated"}

	criteria := criteriaFromConfig(cfg)
	if criteria.Package != "shop" {
		t.Errorf("expected package shop, got %s", criteria.Package)
	}
	if criteria.TagMode != filter.TagModeAny {
		t.Errorf("expected tag mode any, got %s", criteria.TagMode)
	}
	if len(criteria.Tags) != 1 || criteria.Tags[0] != "gold" {
		t.Errorf("expected tags [gold], got %v", criteria.Tags)
	}
	if len(criteria.ExcludeTags) != 1 || criteria.ExcludeTags[0] != "deprecated" {
		t.Errorf("expected exclude tags [deprecated], got %v", criteria.ExcludeTags)
	}
}

func TestFilterInfo(t *testing.T) {
	t.Run("empty tag mode reports the default", func(t *testing.T) {
		info := filterInfo(filter.Criteria{}, coverage.TestTypeAll)
		if info.TagMode != string(filter.TagModeAll) {
			t.Errorf("expected tag mode all, got %s", info.TagMode)
		}
		if info.TestType != "all" {
			t.Errorf("expected test type all, got %s", info.TestType)
		}
	})

	t.Run("criteria are echoed", func(t *testing.T) {
		criteria := filter.Criteria{
			Package:      "shop",
			NamePatterns: []string{"stg_*"},
			Tags:         []string{"gold", "silver"},
			TagMode:      filter.TagModeAny,
		}
		info := filterInfo(criteria, coverage.TestTypeGeneric)
		if info.Package != "shop" {
			t.Errorf("expected package shop, got %s", info.Package)
		}
		if len(info.ModelNames) != 1 || info.ModelNames[0] != "stg_*" {
			t.Errorf("expected model names [stg_*], got %v", info.ModelNames)
		}
		if info.TagMode != "any" {
			t.Errorf("expected tag mode any, got %s", info.TagMode)
		}
		if info.TestType != "generic" {
			t.Errorf("expected test type generic, got %s", info.TestType)
		}
	})
}
