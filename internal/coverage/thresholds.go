package coverage

import "fmt"

// Axis identifies one coverage dimension.
type Axis string

const (
	// AxisColumnTest is the fraction of declared columns carrying tests.
	AxisColumnTest Axis = "column_test"
	// AxisUnitTest is the fraction of models with at least one unit test.
	AxisUnitTest Axis = "unit_test"
	// AxisContract is the fraction of models with an enforced contract.
	AxisContract Axis = "contract"
)

// ParseAxis maps a command line axis argument onto an Axis. Empty,
// "any", and "all" select every axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "", "any", "all":
		return "", nil
	case "column", "column-test", string(AxisColumnTest):
		return AxisColumnTest, nil
	case "unit", "unit-test", string(AxisUnitTest):
		return AxisUnitTest, nil
	case string(AxisContract):
		return AxisContract, nil
	}
	return "", fmt.Errorf("invalid axis: %s (must be column, unit, contract, or any)", s)
}

// Thresholds holds optional minimum percentages per axis. A nil entry
// is not evaluated and can never fail.
type Thresholds struct {
	ColumnTest *float64 `yaml:"column_test,omitempty" json:"column_test,omitempty"`
	UnitTest   *float64 `yaml:"unit_test,omitempty" json:"unit_test,omitempty"`
	Contract   *float64 `yaml:"contract,omitempty" json:"contract,omitempty"`
}

// Any reports whether at least one threshold is supplied.
func (t Thresholds) Any() bool {
	return t.ColumnTest != nil || t.UnitTest != nil || t.Contract != nil
}

// Failure records one axis that fell short of its threshold.
type Failure struct {
	Axis     Axis    `yaml:"axis" json:"axis"`
	Actual   float64 `yaml:"actual" json:"actual"`
	Required float64 `yaml:"required" json:"required"`
}

// Shortfall returns how far below the threshold the actual value is.
func (f Failure) Shortfall() float64 {
	return f.Required - f.Actual
}

// Verdict is the outcome of evaluating thresholds against the overall
// aggregates. Passed is true when every supplied threshold is met; an
// empty Thresholds value always passes.
type Verdict struct {
	Passed   bool      `yaml:"passed" json:"passed"`
	Failures []Failure `yaml:"failures,omitempty" json:"failures,omitempty"`
}

// Evaluate compares overall coverage against the supplied thresholds.
// Meeting a threshold exactly passes.
func Evaluate(overall Aggregate, t Thresholds) Verdict {
	verdict := Verdict{Passed: true}
	check := func(axis Axis, actual float64, required *float64) {
		if required == nil || actual >= *required {
			return
		}
		verdict.Passed = false
		verdict.Failures = append(verdict.Failures, Failure{
			Axis:     axis,
			Actual:   actual,
			Required: *required,
		})
	}
	check(AxisColumnTest, overall.ColumnTest.Percent, t.ColumnTest)
	check(AxisUnitTest, overall.UnitTest.Percent, t.UnitTest)
	check(AxisContract, overall.Contract.Percent, t.Contract)
	return verdict
}
