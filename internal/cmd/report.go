package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/output"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute and render dbt test coverage",
	Long: `Compute test coverage for the models in a dbt manifest and render
the result.

The report covers three independent axes:
  - Column test coverage: declared columns carrying at least one data
    test. A model with no declared columns counts as fully covered.
  - Unit test coverage: models with at least one unit test.
  - Contract coverage: models with an enforced contract.

Aggregates are weighted by the underlying counts: overall column
coverage is total tested columns over total declared columns, not the
mean of per-model percentages. When no --package is given, coverage
spans every package in the manifest and a per-package table is shown.

Thresholds are evaluated only when their flag is supplied; meeting a
threshold exactly passes. When any supplied threshold fails, the
report is still rendered and the command exits 1.

Each run is recorded in the history store of an initialized project
(see 'dbtcov init'), enabling 'dbtcov history' and regression checks.

Examples:
  dbtcov report                                  # All packages
  dbtcov report --package my_project             # One package
  dbtcov report --model-name 'stg_*'             # Staging models only
  dbtcov report --has-tags gold,silver           # Models with both tags
  dbtcov report --has-tags gold,silver --any-tag # Either tag
  dbtcov report --exclude-tags deprecated        # Skip tagged models
  dbtcov report --test-type generic              # Count schema tests only
  dbtcov report --unit-test-threshold 80         # Gate on unit coverage
  dbtcov report --show-column-details            # Per-column breakdown
  dbtcov report --json-out coverage.json         # Also write JSON file`,
	RunE: runReport,
}

var (
	reportManifest          string
	reportPackage           string
	reportModelNames        []string
	reportModelPaths        []string
	reportHasTags           []string
	reportAnyTag            bool
	reportExcludeTags       []string
	reportTestType          string
	reportUnitThreshold     float64
	reportColumnThreshold   float64
	reportContractThreshold float64
	reportShowColumns       bool
	reportJSONOut           string
	reportNoRecord          bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportManifest, "manifest", "", "Path to manifest.json (default: auto-discover under target/)")
	reportCmd.Flags().StringVar(&reportPackage, "package", "", "Restrict to one dbt package (default: config or all packages)")
	reportCmd.Flags().StringSliceVar(&reportModelNames, "model-name", nil, "Glob pattern on model names (repeatable)")
	reportCmd.Flags().StringSliceVar(&reportModelPaths, "model-path", nil, "Glob pattern on model file paths (repeatable)")
	reportCmd.Flags().StringSliceVar(&reportHasTags, "has-tags", nil, "Comma-separated tags models must carry")
	reportCmd.Flags().BoolVar(&reportAnyTag, "any-tag", false, "Match models carrying any of --has-tags instead of all")
	reportCmd.Flags().StringSliceVar(&reportExcludeTags, "exclude-tags", nil, "Comma-separated tags that exclude a model")
	reportCmd.Flags().StringVar(&reportTestType, "test-type", "all", "Which data tests count (singular|generic|all)")
	reportCmd.Flags().Float64Var(&reportUnitThreshold, "unit-test-threshold", 0, "Minimum unit test coverage percentage")
	reportCmd.Flags().Float64Var(&reportColumnThreshold, "column-test-threshold", 0, "Minimum column test coverage percentage")
	reportCmd.Flags().Float64Var(&reportContractThreshold, "contract-threshold", 0, "Minimum contract coverage percentage")
	reportCmd.Flags().BoolVar(&reportShowColumns, "show-column-details", false, "Include per-column detail (implies --density verbose)")
	reportCmd.Flags().StringVar(&reportJSONOut, "json-out", "", "Also write the full report as JSON to this file")
	reportCmd.Flags().BoolVar(&reportNoRecord, "no-record", false, "Skip recording this run in the history store")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	man, err := loadManifest(reportManifest, cfg)
	if err != nil {
		return err
	}

	criteria := criteriaFromConfig(cfg)
	if reportPackage != "" {
		criteria.Package = reportPackage
	}
	criteria.NamePatterns = reportModelNames
	criteria.PathPatterns = reportModelPaths
	if len(reportHasTags) > 0 {
		criteria.Tags = reportHasTags
	}
	if reportAnyTag {
		criteria.TagMode = filter.TagModeAny
	}
	if len(reportExcludeTags) > 0 {
		criteria.ExcludeTags = reportExcludeTags
	}

	testType, err := resolveTestType(cmd, reportTestType, cfg)
	if err != nil {
		return err
	}

	models := filter.Apply(man.Models, criteria)
	stats := coverage.Compute(models, coverage.Options{TestType: testType})

	thresholds := flagThresholds(cmd, reportColumnThreshold, reportUnitThreshold, reportContractThreshold)
	verdict := coverage.Evaluate(stats.Overall, thresholds)

	format, density, err := outputOptions(cmd, cfg)
	if err != nil {
		return err
	}
	if reportShowColumns {
		density = output.DensityVerbose
	}

	report := coverage.Assemble(stats, verdict, man.Diagnostics, coverage.AssembleOptions{
		Package:        criteria.Package,
		Filters:        filterInfo(criteria, testType),
		IncludeModels:  density.IncludesModels(),
		IncludeColumns: density.IncludesColumns(),
	})

	formatter, err := output.GetFormatter(format)
	if err != nil {
		return err
	}
	if err := formatter.FormatToWriter(cmd.OutOrStdout(), report, density); err != nil {
		return fmt.Errorf("format report: %w", err)
	}

	if reportJSONOut != "" {
		// The JSON file always carries full detail regardless of the
		// terminal density.
		full := coverage.Assemble(stats, verdict, man.Diagnostics, coverage.AssembleOptions{
			Package:        criteria.Package,
			Filters:        filterInfo(criteria, testType),
			IncludeModels:  true,
			IncludeColumns: true,
		})
		if err := writeJSONReport(reportJSONOut, full); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "JSON report written to %s\n", reportJSONOut)
	}

	if !reportNoRecord && !cfg.History.Disabled {
		recordRun(cfg, criteria.Package, stats.Overall, verdict.Passed)
	}

	if !verdict.Passed {
		os.Exit(1)
	}
	return nil
}

// writeJSONReport writes the report to path as indented JSON.
func writeJSONReport(path string, report *coverage.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()

	formatter := output.NewJSONFormatter()
	if err := formatter.FormatToWriter(f, report, output.DensityVerbose); err != nil {
		return fmt.Errorf("write report file: %w", err)
	}
	return nil
}
