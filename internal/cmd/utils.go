package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/history"
	"github.com/hargabyte/dbtcov/internal/manifest"
	"github.com/hargabyte/dbtcov/internal/output"
)

// Shared helpers for command implementations

// loadConfig reads the project configuration, honoring the global
// --config flag. When no config file exists the defaults apply.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load(".")
}

// resolveManifestPath returns the manifest to analyze: the explicit
// flag wins, then the configured path, then auto-discovery under the
// conventional target/ locations.
func resolveManifestPath(flagPath string, cfg *config.Config) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if cfg.Manifest.Path != "" {
		return cfg.Manifest.Path, nil
	}
	path, err := manifest.Discover(".")
	if err != nil {
		return "", fmt.Errorf("no manifest found: run 'dbt compile' first or pass --manifest: %w", err)
	}
	return path, nil
}

// loadManifest resolves and loads the manifest for one command run.
func loadManifest(flagPath string, cfg *config.Config) (*manifest.Manifest, error) {
	path, err := resolveManifestPath(flagPath, cfg)
	if err != nil {
		return nil, err
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "dbtcov: loading manifest %s\n", path)
	}
	return manifest.Load(path)
}

// criteriaFromConfig seeds filter criteria with the configured
// defaults. Command flags override individual fields on top.
func criteriaFromConfig(cfg *config.Config) filter.Criteria {
	return filter.Criteria{
		Package:     cfg.Manifest.Package,
		Tags:        cfg.Filters.Tags,
		TagMode:     filter.TagMode(cfg.Filters.TagMode),
		ExcludeTags: cfg.Filters.ExcludeTags,
	}
}

// resolveTestType picks the test type selector: an explicitly set flag
// wins over the configured default.
func resolveTestType(cmd *cobra.Command, flagValue string, cfg *config.Config) (coverage.TestTypeFilter, error) {
	value := cfg.Filters.TestType
	if cmd.Flags().Changed("test-type") {
		value = flagValue
	}
	return coverage.ParseTestTypeFilter(value)
}

// flagThresholds collects per-axis thresholds from command flags. A
// threshold participates only when its flag was explicitly set, so an
// untouched flag can never fail the run.
func flagThresholds(cmd *cobra.Command, column, unit, contract float64) coverage.Thresholds {
	var t coverage.Thresholds
	if cmd.Flags().Changed("column-test-threshold") {
		t.ColumnTest = &column
	}
	if cmd.Flags().Changed("unit-test-threshold") {
		t.UnitTest = &unit
	}
	if cmd.Flags().Changed("contract-threshold") {
		t.Contract = &contract
	}
	return t
}

// outputOptions resolves the effective format and density: an explicit
// flag wins, otherwise the configured default applies.
func outputOptions(cmd *cobra.Command, cfg *config.Config) (output.Format, output.Density, error) {
	formatArg := outputFormat
	if !cmd.Flags().Changed("format") && cfg.Output.DefaultFormat != "" {
		formatArg = cfg.Output.DefaultFormat
	}
	format, err := output.ParseFormat(formatArg)
	if err != nil {
		return "", "", err
	}

	densityArg := outputDensity
	if !cmd.Flags().Changed("density") && cfg.Output.DefaultDensity != "" {
		densityArg = cfg.Output.DefaultDensity
	}
	density, err := output.ParseDensity(densityArg)
	if err != nil {
		return "", "", err
	}
	return format, density, nil
}

// filterInfo echoes the applied criteria into the report so consumers
// can see what the numbers were computed over.
func filterInfo(c filter.Criteria, testType coverage.TestTypeFilter) *coverage.FilterInfo {
	mode := string(c.TagMode)
	if mode == "" {
		mode = string(filter.TagModeAll)
	}
	return &coverage.FilterInfo{
		Package:     c.Package,
		ModelNames:  c.NamePatterns,
		ModelPaths:  c.PathPatterns,
		Tags:        c.Tags,
		TagMode:     mode,
		ExcludeTags: c.ExcludeTags,
		TestType:    string(testType),
	}
}

// recordRun appends the run to the history store. Recording is best
// effort: an uninitialized project or storage failure never fails the
// command, it only warns.
func recordRun(cfg *config.Config, pkg string, summary coverage.Aggregate, passed bool) {
	configDir, err := config.FindConfigDir(".")
	if err != nil {
		if verbose {
			fmt.Fprintf(os.Stderr, "dbtcov: run not recorded, run 'dbtcov init' to enable history\n")
		}
		return
	}

	store, err := history.Open(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open history store: %v\n", err)
		return
	}
	defer store.Close()

	if _, err := store.RecordRun(pkg, summary, passed); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not record run: %v\n", err)
		return
	}
	if cfg.History.Keep > 0 {
		if _, err := store.Prune(cfg.History.Keep); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not prune history: %v\n", err)
		}
	}
}

// openHistory opens the history store of the enclosing project.
func openHistory() (*history.Store, error) {
	configDir, err := config.FindConfigDir(".")
	if err != nil {
		return nil, fmt.Errorf("dbtcov not initialized: run 'dbtcov init' first")
	}

	store, err := history.Open(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	return store, nil
}
