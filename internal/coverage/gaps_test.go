package coverage

import (
	"testing"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

func gapModels() []*manifest.Model {
	return []*manifest.Model{
		{
			UniqueID: "model.shop.untested", Name: "untested", Package: "shop", Path: "models/untested.sql",
			Columns: []*manifest.Column{column("a"), column("b")},
		},
		{
			UniqueID: "model.shop.half", Name: "half", Package: "shop", Path: "models/half.sql",
			Columns:   []*manifest.Column{column("a", manifest.TestGeneric), column("b")},
			UnitTests: []*manifest.UnitTest{{UniqueID: "unit.shop.h", Model: "half", Package: "shop"}},
		},
		{
			UniqueID: "model.shop.full", Name: "full", Package: "shop", Path: "models/full.sql",
			Columns:          []*manifest.Column{column("a", manifest.TestGeneric)},
			UnitTests:        []*manifest.UnitTest{{UniqueID: "unit.shop.f", Model: "full", Package: "shop"}},
			HasContract:      true,
			ContractEnforced: true,
		},
	}
}

func TestFindGapsColumnAxis(t *testing.T) {
	stats := Compute(gapModels(), DefaultOptions())
	report := FindGaps(stats, GapsOptions{Axis: AxisColumnTest, Threshold: 100})

	if report.Total != 2 {
		t.Fatalf("expected 2 gaps, got %d", report.Total)
	}
	// Worst first: untested (0%) before half (50%).
	if report.Gaps[0].Model != "untested" || report.Gaps[1].Model != "half" {
		t.Errorf("unexpected gap order: %s, %s", report.Gaps[0].Model, report.Gaps[1].Model)
	}
	// full is at 100% and meets the threshold exactly, so it is not a gap.
	for _, gap := range report.Gaps {
		if gap.Model == "full" {
			t.Errorf("fully covered model listed as a gap")
		}
	}
}

func TestFindGapsAllAxes(t *testing.T) {
	stats := Compute(gapModels(), DefaultOptions())
	report := FindGaps(stats, DefaultGapsOptions())

	// untested: column + unit + contract; half: column + contract.
	if report.Total != 5 {
		t.Fatalf("expected 5 gaps, got %d", report.Total)
	}
	// All zero-percent gaps come first, in model order then axis order.
	first := report.Gaps[0]
	if first.Model != "untested" || first.Coverage.Percent != 0 {
		t.Errorf("expected a zero-percent untested gap first, got %+v", first)
	}
	last := report.Gaps[len(report.Gaps)-1]
	if last.Model != "half" || last.Axis != AxisColumnTest || last.Coverage.Percent != 50 {
		t.Errorf("expected the 50%% column gap last, got %+v", last)
	}
}

func TestFindGapsThreshold(t *testing.T) {
	stats := Compute(gapModels(), DefaultOptions())

	// Threshold 50: the half model meets it exactly and drops out.
	report := FindGaps(stats, GapsOptions{Axis: AxisColumnTest, Threshold: 50})
	if report.Total != 1 {
		t.Fatalf("expected 1 gap, got %d", report.Total)
	}
	if report.Gaps[0].Model != "untested" {
		t.Errorf("expected untested, got %s", report.Gaps[0].Model)
	}
}

func TestFindGapsLimit(t *testing.T) {
	stats := Compute(gapModels(), DefaultOptions())
	report := FindGaps(stats, GapsOptions{Threshold: 100, Limit: 2})

	if len(report.Gaps) != 2 {
		t.Fatalf("expected 2 gaps after limit, got %d", len(report.Gaps))
	}
	// Total reflects the limited listing.
	if report.Total != 2 {
		t.Errorf("expected total 2, got %d", report.Total)
	}
}

func TestFindGapsBinaryAxes(t *testing.T) {
	stats := Compute(gapModels(), DefaultOptions())

	unit := FindGaps(stats, GapsOptions{Axis: AxisUnitTest, Threshold: 100})
	if unit.Total != 1 || unit.Gaps[0].Model != "untested" {
		t.Errorf("expected only untested to lack unit tests, got %+v", unit.Gaps)
	}
	if unit.Gaps[0].Coverage.Total != 1 || unit.Gaps[0].Coverage.Tested != 0 {
		t.Errorf("binary axis should report 0/1, got %+v", unit.Gaps[0].Coverage)
	}

	contract := FindGaps(stats, GapsOptions{Axis: AxisContract, Threshold: 100})
	if contract.Total != 2 {
		t.Errorf("expected 2 contract gaps, got %d", contract.Total)
	}
}

func TestFindGapsVacuousModelExcluded(t *testing.T) {
	// A zero-column model is vacuously covered on the column axis and
	// never appears as a column gap.
	models := []*manifest.Model{{UniqueID: "model.shop.empty", Name: "empty", Package: "shop"}}
	stats := Compute(models, DefaultOptions())

	report := FindGaps(stats, GapsOptions{Axis: AxisColumnTest, Threshold: 100})
	if report.Total != 0 {
		t.Errorf("zero-column model must not be a column gap, got %+v", report.Gaps)
	}
}
