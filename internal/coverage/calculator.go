// Package coverage computes column-test, unit-test, and contract
// coverage for dbt models and evaluates the results against thresholds.
package coverage

import (
	"fmt"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

// Metric is one coverage measurement: how many units carry tests out of
// how many exist, with the derived percentage.
type Metric struct {
	Tested  int     `yaml:"tested" json:"tested"`
	Total   int     `yaml:"total" json:"total"`
	Percent float64 `yaml:"percent" json:"percent"`
}

// TestTypeFilter selects which data tests count toward column coverage.
type TestTypeFilter string

const (
	// TestTypeAll counts generic and singular tests.
	TestTypeAll TestTypeFilter = "all"
	// TestTypeGeneric counts only schema tests declared through test metadata.
	TestTypeGeneric TestTypeFilter = "generic"
	// TestTypeSingular counts only standalone SQL tests.
	TestTypeSingular TestTypeFilter = "singular"
)

// ParseTestTypeFilter validates a test type argument.
func ParseTestTypeFilter(s string) (TestTypeFilter, error) {
	switch TestTypeFilter(s) {
	case "":
		return TestTypeAll, nil
	case TestTypeAll, TestTypeGeneric, TestTypeSingular:
		return TestTypeFilter(s), nil
	}
	return "", fmt.Errorf("invalid test type: %s (must be singular, generic, or all)", s)
}

// Options configures a coverage computation.
type Options struct {
	// TestType restricts which data tests count toward column coverage.
	TestType TestTypeFilter
}

// DefaultOptions returns the default computation options.
func DefaultOptions() Options {
	return Options{TestType: TestTypeAll}
}

// ColumnCoverage records whether one declared column carries at least
// one counted test.
type ColumnCoverage struct {
	Name   string `yaml:"name" json:"name"`
	Tested bool   `yaml:"tested" json:"tested"`
	Tests  int    `yaml:"tests" json:"tests"`
}

// ModelCoverage holds one model's measurements across the three axes.
type ModelCoverage struct {
	Name             string           `yaml:"name" json:"name"`
	Path             string           `yaml:"path" json:"path"`
	Package          string           `yaml:"package" json:"package"`
	ColumnTest       Metric           `yaml:"column_test" json:"column_test"`
	UnitTests        int              `yaml:"unit_tests" json:"unit_tests"`
	HasUnitTests     bool             `yaml:"has_unit_tests" json:"has_unit_tests"`
	ContractEnforced bool             `yaml:"contract_enforced" json:"contract_enforced"`
	ContractIssues   []string         `yaml:"contract_issues,omitempty" json:"contract_issues,omitempty"`
	Columns          []ColumnCoverage `yaml:"columns,omitempty" json:"columns,omitempty"`
}

// Aggregate holds the coverage of a set of models across the three
// axes. Column counts are weighted by the underlying column totals, not
// averaged per model, so large models carry proportionally more signal
// than small ones.
type Aggregate struct {
	Models                int    `yaml:"models" json:"models"`
	ModelsWithColumnTests int    `yaml:"models_with_column_tests" json:"models_with_column_tests"`
	ColumnTest            Metric `yaml:"column_test" json:"column_test"`
	UnitTest              Metric `yaml:"unit_test" json:"unit_test"`
	Contract              Metric `yaml:"contract" json:"contract"`
}

// PackageCoverage aggregates coverage for the models of one package.
type PackageCoverage struct {
	Name string `yaml:"name" json:"name"`
	Aggregate
}

// Stats is the complete output of a coverage computation: per-model
// coverage in input order plus package and overall aggregates.
type Stats struct {
	Models   []ModelCoverage
	Packages []PackageCoverage // Ordered by first appearance in the input
	Overall  Aggregate
}

// Compute derives coverage metrics for the given models. It is a pure
// function: the models are read, never mutated, and identical input
// always produces identical output.
func Compute(models []*manifest.Model, opts Options) *Stats {
	stats := &Stats{Models: make([]ModelCoverage, 0, len(models))}

	overall := counts{}
	perPackage := make(map[string]*counts)
	var packageOrder []string

	for _, model := range models {
		mc := computeModel(model, opts.TestType)
		stats.Models = append(stats.Models, mc)

		pkg, ok := perPackage[model.Package]
		if !ok {
			pkg = &counts{}
			perPackage[model.Package] = pkg
			packageOrder = append(packageOrder, model.Package)
		}
		overall.add(mc)
		pkg.add(mc)
	}

	stats.Overall = overall.aggregate()
	for _, name := range packageOrder {
		stats.Packages = append(stats.Packages, PackageCoverage{
			Name:      name,
			Aggregate: perPackage[name].aggregate(),
		})
	}
	return stats
}

func computeModel(model *manifest.Model, testType TestTypeFilter) ModelCoverage {
	mc := ModelCoverage{
		Name:             model.Name,
		Path:             model.Path,
		Package:          model.Package,
		UnitTests:        len(model.UnitTests),
		HasUnitTests:     len(model.UnitTests) > 0,
		ContractEnforced: model.ContractEnforced,
	}
	if model.HasContract && !model.ContractEnforced {
		mc.ContractIssues = append(mc.ContractIssues, "contract present but not enforced")
	}

	tested := 0
	for _, col := range model.Columns {
		counted := countedTests(col, testType)
		if counted > 0 {
			tested++
		}
		mc.Columns = append(mc.Columns, ColumnCoverage{
			Name:   col.Name,
			Tested: counted > 0,
			Tests:  counted,
		})
	}
	mc.ColumnTest = columnMetric(tested, len(model.Columns))
	return mc
}

func countedTests(col *manifest.Column, testType TestTypeFilter) int {
	count := 0
	for _, test := range col.Tests {
		switch testType {
		case TestTypeGeneric:
			if test.Kind != manifest.TestGeneric {
				continue
			}
		case TestTypeSingular:
			if test.Kind != manifest.TestSingular {
				continue
			}
		}
		count++
	}
	return count
}

// counts accumulates the raw tallies behind an Aggregate.
type counts struct {
	models         int
	withColumnTest int
	testedCols     int
	totalCols      int
	withUnit       int
	withContract   int
}

func (c *counts) add(mc ModelCoverage) {
	c.models++
	if mc.ColumnTest.Tested > 0 {
		c.withColumnTest++
	}
	c.testedCols += mc.ColumnTest.Tested
	c.totalCols += mc.ColumnTest.Total
	if mc.HasUnitTests {
		c.withUnit++
	}
	if mc.ContractEnforced {
		c.withContract++
	}
}

func (c *counts) aggregate() Aggregate {
	agg := Aggregate{Models: c.models, ModelsWithColumnTests: c.withColumnTest}
	if c.models == 0 {
		// An empty model set reports zero-valued metrics on every axis.
		return agg
	}
	agg.ColumnTest = columnMetric(c.testedCols, c.totalCols)
	agg.UnitTest = ratioMetric(c.withUnit, c.models)
	agg.Contract = ratioMetric(c.withContract, c.models)
	return agg
}

// columnMetric treats a zero denominator as fully covered: a model that
// declares no columns has nothing left to test. This never raises or
// divides by zero.
func columnMetric(tested, total int) Metric {
	if total == 0 {
		return Metric{Tested: tested, Total: total, Percent: 100}
	}
	return ratioMetric(tested, total)
}

func ratioMetric(tested, total int) Metric {
	m := Metric{Tested: tested, Total: total}
	if total > 0 {
		m.Percent = float64(tested) / float64(total) * 100
	}
	return m
}
