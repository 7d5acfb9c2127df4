package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/output"
)

// gapsCmd represents the gaps command
var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List models below a coverage threshold",
	Long: `List the models falling short of a coverage threshold, worst first.

Each gap names the model, the axis it falls short on, and its
measurement on that axis. Binary axes (unit tests, contracts) are
reported as 0/1 or 1/1. A model can appear once per axis, so a model
with no tests at all shows up three times with --axis any.

The listing reports standings only. It is not a gate: the exit code
is 0 even when gaps exist. Use 'dbtcov check' for gating.

Examples:
  dbtcov gaps                          # Everything short of 100%
  dbtcov gaps --axis column            # Column test gaps only
  dbtcov gaps --axis unit --limit 10   # Ten worst unit test gaps
  dbtcov gaps --threshold 80           # Models below 80%
  dbtcov gaps --package my_project --format json`,
	RunE: runGaps,
}

var (
	gapsManifest  string
	gapsPackage   string
	gapsThreshold float64
	gapsAxis      string
	gapsLimit     int
)

func init() {
	rootCmd.AddCommand(gapsCmd)

	gapsCmd.Flags().StringVar(&gapsManifest, "manifest", "", "Path to manifest.json (default: auto-discover under target/)")
	gapsCmd.Flags().StringVar(&gapsPackage, "package", "", "Restrict to one dbt package (default: config or all packages)")
	gapsCmd.Flags().Float64Var(&gapsThreshold, "threshold", 100, "Coverage percentage below which a model is listed")
	gapsCmd.Flags().StringVar(&gapsAxis, "axis", "any", "Coverage axis (column|unit|contract|any)")
	gapsCmd.Flags().IntVar(&gapsLimit, "limit", 0, "Maximum gaps listed (0 = no limit)")
}

func runGaps(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	axis, err := coverage.ParseAxis(gapsAxis)
	if err != nil {
		return err
	}

	man, err := loadManifest(gapsManifest, cfg)
	if err != nil {
		return err
	}

	criteria := criteriaFromConfig(cfg)
	if gapsPackage != "" {
		criteria.Package = gapsPackage
	}

	testType, err := coverage.ParseTestTypeFilter(cfg.Filters.TestType)
	if err != nil {
		return err
	}

	models := filter.Apply(man.Models, criteria)
	stats := coverage.Compute(models, coverage.Options{TestType: testType})

	gaps := coverage.FindGaps(stats, coverage.GapsOptions{
		Axis:      axis,
		Threshold: gapsThreshold,
		Limit:     gapsLimit,
	})

	format, density, err := outputOptions(cmd, cfg)
	if err != nil {
		return err
	}
	formatter, err := output.GetFormatter(format)
	if err != nil {
		return err
	}
	if err := formatter.FormatToWriter(cmd.OutOrStdout(), gaps, density); err != nil {
		return fmt.Errorf("format gaps: %w", err)
	}
	return nil
}
