package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/history"
	"github.com/hargabyte/dbtcov/internal/output"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded coverage runs",
	Long: `Display recorded coverage runs, newest first.

Runs are recorded by 'dbtcov report' and 'dbtcov check' in a project
initialized with 'dbtcov init'. Each entry carries the run id, when
it was recorded, the package it covered, the model count, and the
overall aggregates across the three axes.

Retention is controlled by the history section of
.dbtcov/config.yaml; older runs beyond the keep count are pruned on
record.

Examples:
  dbtcov history                       # Last 10 runs
  dbtcov history --limit 25            # More runs
  dbtcov history --package my_project  # One package only
  dbtcov history --format json         # JSON output for tooling`,
	RunE: runHistory,
}

var (
	historyLimit   int
	historyPackage string
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyPackage, "package", "", "Restrict to runs recorded for one package")
}

// HistoryOutput is the full history listing
type HistoryOutput struct {
	Runs  []history.Run `yaml:"runs" json:"runs"`
	Total int           `yaml:"total" json:"total"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(historyPackage, historyLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs. Run 'dbtcov report' to record one.")
		return nil
	}

	historyOut := &HistoryOutput{Runs: runs, Total: len(runs)}

	format, density, err := outputOptions(cmd, cfg)
	if err != nil {
		return err
	}

	if format.IsStructured() {
		formatter, err := output.GetFormatter(format)
		if err != nil {
			return err
		}
		if err := formatter.FormatToWriter(cmd.OutOrStdout(), historyOut, density); err != nil {
			return fmt.Errorf("format history: %w", err)
		}
		return nil
	}

	renderHistoryText(cmd.OutOrStdout(), historyOut)
	return nil
}

// renderHistoryText writes the run table, newest first.
func renderHistoryText(w io.Writer, out *HistoryOutput) {
	fmt.Fprintf(w, "%d recorded runs\n\n", out.Total)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Run\tRecorded\tPackage\tModels\tColumns\tUnit Tests\tContracts\tPassed")
	fmt.Fprintln(tw, "---\t--------\t-------\t------\t-------\t----------\t---------\t------")
	for _, run := range out.Runs {
		pkg := run.Package
		if pkg == "" {
			pkg = "(all)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			shortenRunID(run.ID),
			run.RecordedAt.Format("2006-01-02 15:04"),
			pkg,
			run.Summary.Models,
			output.FormatMetric(run.Summary.ColumnTest),
			output.FormatMetric(run.Summary.UnitTest),
			output.FormatMetric(run.Summary.Contract),
			yesNoText(run.Passed))
	}
	tw.Flush()
}

// shortenRunID returns the first 8 characters of a run id.
func shortenRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNoText(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
