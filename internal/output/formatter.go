// Package output provides formatters for different output formats.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/hargabyte/dbtcov/internal/coverage"
	"gopkg.in/yaml.v3"
)

// Formatter is the interface for rendering coverage output in different formats.
type Formatter interface {
	// Format renders a report according to the specified density level.
	// Returns the rendered string or an error.
	Format(report interface{}, density Density) (string, error)

	// FormatToWriter writes rendered output directly to a writer.
	FormatToWriter(w io.Writer, report interface{}, density Density) error
}

// YAMLFormatter marshals reports as YAML output.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Format renders a report as YAML.
func (f *YAMLFormatter) Format(report interface{}, density Density) (string, error) {
	var buf bytes.Buffer
	if err := f.FormatToWriter(&buf, report, density); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatToWriter writes YAML output to a writer. Detail gating happens
// when the report is assembled, so the value is marshaled as given.
func (f *YAMLFormatter) FormatToWriter(w io.Writer, report interface{}, density Density) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	return encoder.Encode(report)
}

// JSONFormatter marshals reports as JSON output.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format renders a report as JSON.
func (f *JSONFormatter) Format(report interface{}, density Density) (string, error) {
	var buf bytes.Buffer
	if err := f.FormatToWriter(&buf, report, density); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatToWriter writes JSON output to a writer.
func (f *JSONFormatter) FormatToWriter(w io.Writer, report interface{}, density Density) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(report)
}

// TextFormatter renders coverage output as human-readable tables.
type TextFormatter struct{}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format renders a report as text.
func (f *TextFormatter) Format(report interface{}, density Density) (string, error) {
	var buf bytes.Buffer
	if err := f.FormatToWriter(&buf, report, density); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FormatToWriter writes text output to a writer.
func (f *TextFormatter) FormatToWriter(w io.Writer, report interface{}, density Density) error {
	switch v := report.(type) {
	case *coverage.Report:
		return f.writeReport(w, v, density)
	case *coverage.GapsReport:
		return f.writeGaps(w, v)
	default:
		return fmt.Errorf("text formatter does not support type %T", report)
	}
}

// writeReport renders a full coverage report: header, summary, optional
// package and model tables, per-column detail, contract issues, and any
// threshold failures.
func (f *TextFormatter) writeReport(w io.Writer, r *coverage.Report, density Density) error {
	if r.Package != "" {
		fmt.Fprintf(w, "dbt test coverage report for %q\n\n", r.Package)
	} else {
		fmt.Fprintf(w, "dbt test coverage report\n\n")
	}

	if density.IncludesDiagnostics() && r.Filters != nil {
		f.writeFilters(w, r.Filters)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Models:\t%d\n", r.Summary.Models)
	fmt.Fprintf(tw, "With column tests:\t%d\n", r.Summary.ModelsWithColumnTests)
	fmt.Fprintf(tw, "Column test coverage:\t%s\n", FormatMetric(r.Summary.ColumnTest))
	fmt.Fprintf(tw, "Unit test coverage:\t%s\n", FormatMetric(r.Summary.UnitTest))
	fmt.Fprintf(tw, "Contract coverage:\t%s\n", FormatMetric(r.Summary.Contract))
	tw.Flush()

	if len(r.Packages) > 1 {
		fmt.Fprintln(w)
		f.writePackageTable(w, r.Packages)
	}

	if density.IncludesModels() && len(r.Models) > 0 {
		fmt.Fprintln(w)
		f.writeModelTable(w, r.Models)
	}

	if density.IncludesColumns() {
		f.writeColumnDetail(w, r.Models)
	}

	if len(r.ContractIssues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Contract issues:")
		for _, issue := range r.ContractIssues {
			fmt.Fprintf(w, "  %s\n", issue.Model)
			for _, item := range issue.Issues {
				fmt.Fprintf(w, "    - %s\n", item)
			}
		}
	}

	if density.IncludesDiagnostics() {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Diagnostics: %d nodes seen, %d orphaned tests\n",
			r.Diagnostics.NodesSeen, r.Diagnostics.OrphanedTests)
	}

	if !r.Verdict.Passed {
		fmt.Fprintln(w)
		for _, fail := range r.Verdict.Failures {
			fmt.Fprintf(w, "FAIL %s coverage %.1f%% below threshold %.1f%%\n",
				AxisLabel(fail.Axis), fail.Actual, fail.Required)
		}
	}

	return nil
}

// writeFilters echoes the criteria the report was produced under.
func (f *TextFormatter) writeFilters(w io.Writer, fi *coverage.FilterInfo) {
	fmt.Fprintln(w, "Active filters:")
	if fi.Package != "" {
		fmt.Fprintf(w, "  package: %s\n", fi.Package)
	}
	if len(fi.ModelNames) > 0 {
		fmt.Fprintf(w, "  model names: %s\n", strings.Join(fi.ModelNames, ", "))
	}
	if len(fi.ModelPaths) > 0 {
		fmt.Fprintf(w, "  paths: %s\n", strings.Join(fi.ModelPaths, ", "))
	}
	if len(fi.Tags) > 0 {
		label := "must have tags"
		if fi.TagMode == "any" {
			label = "any of tags"
		}
		fmt.Fprintf(w, "  %s: %s\n", label, strings.Join(fi.Tags, ", "))
	}
	if len(fi.ExcludeTags) > 0 {
		fmt.Fprintf(w, "  excluded tags: %s\n", strings.Join(fi.ExcludeTags, ", "))
	}
	if fi.TestType != "" && fi.TestType != "all" {
		fmt.Fprintf(w, "  test type: %s\n", fi.TestType)
	}
	fmt.Fprintln(w)
}

// writePackageTable renders the per-package aggregate table.
func (f *TextFormatter) writePackageTable(w io.Writer, packages []coverage.PackageCoverage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeTableHeader(tw, "Package", "Models", "Columns", "Unit Tests", "Contracts")
	for _, pc := range packages {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", pc.Name, pc.Models,
			FormatMetric(pc.ColumnTest), FormatMetric(pc.UnitTest), FormatMetric(pc.Contract))
	}
	tw.Flush()
}

// writeModelTable renders the per-model summary table.
func (f *TextFormatter) writeModelTable(w io.Writer, models []coverage.ModelCoverage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeTableHeader(tw, "Model", "Columns", "Unit Tests", "Contract")
	for _, mc := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", mc.Name,
			FormatMetric(mc.ColumnTest), mc.UnitTests, yesNo(mc.ContractEnforced))
	}
	tw.Flush()
}

// writeColumnDetail renders per-column rows for each model that
// declares columns.
func (f *TextFormatter) writeColumnDetail(w io.Writer, models []coverage.ModelCoverage) {
	for _, mc := range models {
		if len(mc.Columns) == 0 {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Columns of %s (%s), %s:\n", mc.Name, mc.Path, FormatMetric(mc.ColumnTest))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		writeTableHeader(tw, "Column", "Tested", "Tests")
		for _, col := range mc.Columns {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", col.Name, yesNo(col.Tested), col.Tests)
		}
		tw.Flush()
	}
}

// writeGaps renders a gap listing, worst coverage first.
func (f *TextFormatter) writeGaps(w io.Writer, r *coverage.GapsReport) error {
	if len(r.Gaps) == 0 {
		fmt.Fprintf(w, "No models below %.1f%% coverage\n", r.Threshold)
		return nil
	}

	fmt.Fprintf(w, "%d coverage gaps below %.1f%%\n\n", r.Total, r.Threshold)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeTableHeader(tw, "Model", "Axis", "Coverage", "Path")
	for _, gap := range r.Gaps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", gap.Model,
			AxisLabel(gap.Axis), FormatMetric(gap.Coverage), gap.Path)
	}
	tw.Flush()
	return nil
}

// writeTableHeader writes a tab-separated header row followed by a dash
// separator row.
func writeTableHeader(w io.Writer, headers ...string) {
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	seps := make([]string, len(headers))
	for i, h := range headers {
		seps[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(w, strings.Join(seps, "\t"))
}

// FormatMetric renders a metric as "tested/total (pct%)".
func FormatMetric(m coverage.Metric) string {
	return fmt.Sprintf("%d/%d (%.1f%%)", m.Tested, m.Total, m.Percent)
}

// AxisLabel returns the human label for a coverage axis.
func AxisLabel(axis coverage.Axis) string {
	switch axis {
	case coverage.AxisColumnTest:
		return "column test"
	case coverage.AxisUnitTest:
		return "unit test"
	case coverage.AxisContract:
		return "contract"
	default:
		return string(axis)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// GetFormatter returns a formatter for the specified format.
func GetFormatter(format Format) (Formatter, error) {
	switch format {
	case FormatText:
		return NewTextFormatter(), nil
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
