package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/history"
	"github.com/hargabyte/dbtcov/internal/output"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate coverage thresholds as a CI gate",
	Long: `Evaluate coverage thresholds against a dbt manifest and exit with a
CI-friendly status.

Thresholds come from flags, falling back to the thresholds section of
.dbtcov/config.yaml. Only supplied thresholds are evaluated; meeting
a threshold exactly passes. The output is a compact pass/fail summary
listing each failing axis with its actual and required percentage.

With --fail-on-regression the overall aggregates are also compared
against the last recorded run: any axis whose percentage dropped
fails the check, regardless of thresholds. Runs are recorded by
'dbtcov report' and by this command in an initialized project.

Exit codes:
  0 = every supplied threshold met, no regression
  1 = a threshold failed or coverage regressed
  2 = manifest not found or malformed

Examples:
  dbtcov check --unit-test-threshold 80          # Gate one axis
  dbtcov check --column-test-threshold 90 \
               --contract-threshold 50           # Gate several axes
  dbtcov check                                   # Thresholds from config
  dbtcov check --fail-on-regression              # Also catch drops
  dbtcov check --package my_project --format json`,
	RunE: runCheck,
}

var (
	checkManifest          string
	checkPackage           string
	checkUnitThreshold     float64
	checkColumnThreshold   float64
	checkContractThreshold float64
	checkFailOnRegression  bool
	checkNoRecord          bool
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkManifest, "manifest", "", "Path to manifest.json (default: auto-discover under target/)")
	checkCmd.Flags().StringVar(&checkPackage, "package", "", "Restrict to one dbt package (default: config or all packages)")
	checkCmd.Flags().Float64Var(&checkUnitThreshold, "unit-test-threshold", 0, "Minimum unit test coverage percentage")
	checkCmd.Flags().Float64Var(&checkColumnThreshold, "column-test-threshold", 0, "Minimum column test coverage percentage")
	checkCmd.Flags().Float64Var(&checkContractThreshold, "contract-threshold", 0, "Minimum contract coverage percentage")
	checkCmd.Flags().BoolVar(&checkFailOnRegression, "fail-on-regression", false, "Fail when any axis dropped below the last recorded run")
	checkCmd.Flags().BoolVar(&checkNoRecord, "no-record", false, "Skip recording this run in the history store")
}

// CheckOutput represents the check results
type CheckOutput struct {
	Passed      bool                `yaml:"passed" json:"passed"`
	Package     string              `yaml:"package,omitempty" json:"package,omitempty"`
	Summary     coverage.Aggregate  `yaml:"summary" json:"summary"`
	Thresholds  coverage.Thresholds `yaml:"thresholds" json:"thresholds"`
	Failures    []coverage.Failure  `yaml:"failures,omitempty" json:"failures,omitempty"`
	Regressions []Regression        `yaml:"regressions,omitempty" json:"regressions,omitempty"`
}

// Regression records an axis whose coverage dropped since the last
// recorded run.
type Regression struct {
	Axis     coverage.Axis `yaml:"axis" json:"axis"`
	Previous float64       `yaml:"previous" json:"previous"`
	Current  float64       `yaml:"current" json:"current"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Flags win per axis; untouched axes fall back to the config.
	thresholds := flagThresholds(cmd, checkColumnThreshold, checkUnitThreshold, checkContractThreshold)
	if thresholds.ColumnTest == nil {
		thresholds.ColumnTest = cfg.Thresholds.ColumnTest
	}
	if thresholds.UnitTest == nil {
		thresholds.UnitTest = cfg.Thresholds.UnitTest
	}
	if thresholds.Contract == nil {
		thresholds.Contract = cfg.Thresholds.Contract
	}
	if !thresholds.Any() && !checkFailOnRegression {
		return fmt.Errorf("no thresholds supplied: pass a threshold flag or configure thresholds in .dbtcov/config.yaml")
	}

	man, err := loadManifest(checkManifest, cfg)
	if err != nil {
		return err
	}

	criteria := criteriaFromConfig(cfg)
	if checkPackage != "" {
		criteria.Package = checkPackage
	}

	testType, err := coverage.ParseTestTypeFilter(cfg.Filters.TestType)
	if err != nil {
		return err
	}

	models := filter.Apply(man.Models, criteria)
	stats := coverage.Compute(models, coverage.Options{TestType: testType})
	verdict := coverage.Evaluate(stats.Overall, thresholds)

	result := &CheckOutput{
		Passed:     verdict.Passed,
		Package:    criteria.Package,
		Summary:    stats.Overall,
		Thresholds: thresholds,
		Failures:   verdict.Failures,
	}

	if checkFailOnRegression {
		regressions, err := regressionsSinceLastRun(criteria.Package, stats.Overall)
		if err != nil {
			return err
		}
		result.Regressions = regressions
		if len(regressions) > 0 {
			result.Passed = false
		}
	}

	// Record after comparing, so a regression check never compares the
	// run against itself.
	if !checkNoRecord && !cfg.History.Disabled {
		recordRun(cfg, criteria.Package, stats.Overall, result.Passed)
	}

	format, density, err := outputOptions(cmd, cfg)
	if err != nil {
		return err
	}

	if format.IsStructured() {
		formatter, err := output.GetFormatter(format)
		if err != nil {
			return err
		}
		if err := formatter.FormatToWriter(cmd.OutOrStdout(), result, density); err != nil {
			return fmt.Errorf("format check result: %w", err)
		}
	} else {
		renderCheckText(cmd.OutOrStdout(), result)
	}

	if !result.Passed {
		os.Exit(1)
	}
	return nil
}

// regressionsSinceLastRun compares the current aggregates against the
// last recorded run for the same package. A project without recorded
// runs has nothing to regress from and passes.
func regressionsSinceLastRun(pkg string, current coverage.Aggregate) ([]Regression, error) {
	store, err := openHistory()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	last, err := store.LastRun(pkg)
	if err != nil {
		if errors.Is(err, history.ErrNoRuns) {
			fmt.Fprintf(os.Stderr, "dbtcov: no recorded runs to compare against\n")
			return nil, nil
		}
		return nil, err
	}
	return detectRegressions(last, current), nil
}

// detectRegressions reports every axis whose percentage dropped below
// the previous run. Staying equal is not a regression.
func detectRegressions(previous *history.Run, current coverage.Aggregate) []Regression {
	var regressions []Regression
	compare := func(axis coverage.Axis, prev, cur float64) {
		if cur < prev {
			regressions = append(regressions, Regression{Axis: axis, Previous: prev, Current: cur})
		}
	}
	compare(coverage.AxisColumnTest, previous.Summary.ColumnTest.Percent, current.ColumnTest.Percent)
	compare(coverage.AxisUnitTest, previous.Summary.UnitTest.Percent, current.UnitTest.Percent)
	compare(coverage.AxisContract, previous.Summary.Contract.Percent, current.Contract.Percent)
	return regressions
}

// renderCheckText writes the compact pass/fail summary.
func renderCheckText(w io.Writer, result *CheckOutput) {
	status := "PASS"
	if !result.Passed {
		status = "FAIL"
	}
	if result.Package != "" {
		fmt.Fprintf(w, "dbtcov check %q: %s\n", result.Package, status)
	} else {
		fmt.Fprintf(w, "dbtcov check: %s\n", status)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeAxisLine := func(axis coverage.Axis, metric coverage.Metric, required *float64) {
		line := fmt.Sprintf("  %s:\t%s", output.AxisLabel(axis), output.FormatMetric(metric))
		if required != nil {
			line += fmt.Sprintf("\trequired %.1f%%", *required)
		}
		fmt.Fprintln(tw, line)
	}
	writeAxisLine(coverage.AxisColumnTest, result.Summary.ColumnTest, result.Thresholds.ColumnTest)
	writeAxisLine(coverage.AxisUnitTest, result.Summary.UnitTest, result.Thresholds.UnitTest)
	writeAxisLine(coverage.AxisContract, result.Summary.Contract, result.Thresholds.Contract)
	tw.Flush()

	for _, fail := range result.Failures {
		fmt.Fprintf(w, "FAIL %s coverage %.1f%% below threshold %.1f%%\n",
			output.AxisLabel(fail.Axis), fail.Actual, fail.Required)
	}
	for _, reg := range result.Regressions {
		fmt.Fprintf(w, "FAIL %s coverage regressed from %.1f%% to %.1f%%\n",
			output.AxisLabel(reg.Axis), reg.Previous, reg.Current)
	}
}
