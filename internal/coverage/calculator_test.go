package coverage

import (
	"fmt"
	"math"
	"testing"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

func column(name string, kinds ...manifest.TestKind) *manifest.Column {
	col := &manifest.Column{Name: name}
	for i, kind := range kinds {
		col.Tests = append(col.Tests, &manifest.Test{
			UniqueID: fmt.Sprintf("test.%s.%d", name, i),
			Kind:     kind,
			Column:   name,
		})
	}
	return col
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Model A has 3 columns with 2 tested, one unit test, and an enforced
// contract. Model B has no columns, no unit tests, and no contract.
func abModels() []*manifest.Model {
	a := &manifest.Model{
		UniqueID: "model.shop.model_a",
		Name:     "model_a",
		Package:  "shop",
		Path:     "models/model_a.sql",
		Columns: []*manifest.Column{
			column("c1", manifest.TestGeneric),
			column("c2", manifest.TestGeneric),
			column("c3"),
		},
		UnitTests:        []*manifest.UnitTest{{UniqueID: "unit.shop.a1", Model: "model_a", Package: "shop"}},
		HasContract:      true,
		ContractEnforced: true,
	}
	b := &manifest.Model{
		UniqueID: "model.shop.model_b",
		Name:     "model_b",
		Package:  "shop",
		Path:     "models/model_b.sql",
	}
	return []*manifest.Model{a, b}
}

func TestComputeOverall(t *testing.T) {
	stats := Compute(abModels(), DefaultOptions())

	if stats.Overall.Models != 2 {
		t.Fatalf("expected 2 models, got %d", stats.Overall.Models)
	}

	col := stats.Overall.ColumnTest
	if col.Tested != 2 || col.Total != 3 {
		t.Errorf("expected column counts 2/3, got %d/%d", col.Tested, col.Total)
	}
	if !almostEqual(col.Percent, 200.0/3.0) {
		t.Errorf("expected column coverage %.4f, got %.4f", 200.0/3.0, col.Percent)
	}

	unit := stats.Overall.UnitTest
	if unit.Tested != 1 || unit.Total != 2 || !almostEqual(unit.Percent, 50) {
		t.Errorf("expected unit coverage 1/2 (50%%), got %d/%d (%.1f%%)", unit.Tested, unit.Total, unit.Percent)
	}

	contract := stats.Overall.Contract
	if contract.Tested != 1 || contract.Total != 2 || !almostEqual(contract.Percent, 50) {
		t.Errorf("expected contract coverage 1/2 (50%%), got %d/%d (%.1f%%)", contract.Tested, contract.Total, contract.Percent)
	}

	if stats.Overall.ModelsWithColumnTests != 1 {
		t.Errorf("expected 1 model with column tests, got %d", stats.Overall.ModelsWithColumnTests)
	}
}

func TestComputeZeroColumnModel(t *testing.T) {
	stats := Compute(abModels(), DefaultOptions())

	b := stats.Models[1]
	if b.Name != "model_b" {
		t.Fatalf("expected model_b second, got %s", b.Name)
	}
	if b.ColumnTest.Total != 0 {
		t.Fatalf("expected 0 columns, got %d", b.ColumnTest.Total)
	}
	// A model with no declared columns is vacuously fully covered.
	if b.ColumnTest.Percent != 100 {
		t.Errorf("expected 100%% for zero-column model, got %.1f%%", b.ColumnTest.Percent)
	}
	if math.IsNaN(b.ColumnTest.Percent) || math.IsInf(b.ColumnTest.Percent, 0) {
		t.Errorf("zero-column coverage must be a finite number")
	}
}

func TestComputeWeightedAggregateNotMean(t *testing.T) {
	big := &manifest.Model{
		UniqueID: "model.shop.big", Name: "big", Package: "shop", Path: "models/big.sql",
	}
	for i := 0; i < 10; i++ {
		big.Columns = append(big.Columns, column(fmt.Sprintf("b%d", i)))
	}
	small := &manifest.Model{
		UniqueID: "model.shop.small", Name: "small", Package: "shop", Path: "models/small.sql",
		Columns: []*manifest.Column{column("s0", manifest.TestGeneric)},
	}

	stats := Compute([]*manifest.Model{big, small}, DefaultOptions())

	// Mean of per-model percentages would be 50; the weighted result
	// is 1 tested column out of 11.
	want := 100.0 / 11.0
	got := stats.Overall.ColumnTest.Percent
	if !almostEqual(got, want) {
		t.Errorf("expected weighted coverage %.4f, got %.4f", want, got)
	}
	if almostEqual(got, 50) {
		t.Errorf("aggregate must not be the mean of per-model percentages")
	}
}

func TestComputeEmptyModelSet(t *testing.T) {
	stats := Compute(nil, DefaultOptions())

	if stats.Overall.Models != 0 {
		t.Errorf("expected 0 models, got %d", stats.Overall.Models)
	}
	for _, metric := range []Metric{stats.Overall.ColumnTest, stats.Overall.UnitTest, stats.Overall.Contract} {
		if metric.Tested != 0 || metric.Total != 0 || metric.Percent != 0 {
			t.Errorf("empty set should report zero-valued metrics, got %+v", metric)
		}
	}
	if len(stats.Packages) != 0 {
		t.Errorf("expected no package aggregates, got %d", len(stats.Packages))
	}
}

func TestComputeVacuousColumnAggregate(t *testing.T) {
	// A non-empty set where no model declares columns: nothing left to
	// test, so the column axis reports 100%.
	models := []*manifest.Model{
		{UniqueID: "model.shop.x", Name: "x", Package: "shop"},
		{UniqueID: "model.shop.y", Name: "y", Package: "shop"},
	}
	stats := Compute(models, DefaultOptions())
	if stats.Overall.ColumnTest.Percent != 100 {
		t.Errorf("expected vacuous 100%%, got %.1f%%", stats.Overall.ColumnTest.Percent)
	}
	if stats.Overall.UnitTest.Percent != 0 {
		t.Errorf("unit axis counts models and should be 0%%, got %.1f%%", stats.Overall.UnitTest.Percent)
	}
}

func TestComputeTestTypeFilter(t *testing.T) {
	model := &manifest.Model{
		UniqueID: "model.shop.m", Name: "m", Package: "shop",
		Columns: []*manifest.Column{
			column("generic_only", manifest.TestGeneric),
			column("singular_only", manifest.TestSingular),
		},
	}

	tests := []struct {
		testType   TestTypeFilter
		wantTested int
	}{
		{TestTypeAll, 2},
		{TestTypeGeneric, 1},
		{TestTypeSingular, 1},
	}
	for _, tt := range tests {
		stats := Compute([]*manifest.Model{model}, Options{TestType: tt.testType})
		got := stats.Models[0].ColumnTest.Tested
		if got != tt.wantTested {
			t.Errorf("test type %s: expected %d tested columns, got %d", tt.testType, tt.wantTested, got)
		}
	}
}

func TestComputePackageAggregates(t *testing.T) {
	models := []*manifest.Model{
		{UniqueID: "model.a.one", Name: "one", Package: "alpha",
			Columns: []*manifest.Column{column("c", manifest.TestGeneric)}},
		{UniqueID: "model.b.two", Name: "two", Package: "beta"},
		{UniqueID: "model.a.three", Name: "three", Package: "alpha",
			Columns: []*manifest.Column{column("d")}},
	}

	stats := Compute(models, DefaultOptions())

	if len(stats.Packages) != 2 {
		t.Fatalf("expected 2 packages, got %d", len(stats.Packages))
	}
	// First-appearance order.
	if stats.Packages[0].Name != "alpha" || stats.Packages[1].Name != "beta" {
		t.Errorf("unexpected package order: %s, %s", stats.Packages[0].Name, stats.Packages[1].Name)
	}

	alpha := stats.Packages[0]
	if alpha.Models != 2 {
		t.Errorf("expected 2 alpha models, got %d", alpha.Models)
	}
	if alpha.ColumnTest.Tested != 1 || alpha.ColumnTest.Total != 2 {
		t.Errorf("expected alpha columns 1/2, got %d/%d", alpha.ColumnTest.Tested, alpha.ColumnTest.Total)
	}

	beta := stats.Packages[1]
	if beta.Models != 1 || beta.ColumnTest.Percent != 100 {
		t.Errorf("beta has no columns and should be vacuously covered, got %.1f%%", beta.ColumnTest.Percent)
	}
}

func TestComputeContractIssues(t *testing.T) {
	models := []*manifest.Model{
		{UniqueID: "model.shop.loose", Name: "loose", Package: "shop", HasContract: true, ContractEnforced: false},
		{UniqueID: "model.shop.strict", Name: "strict", Package: "shop", HasContract: true, ContractEnforced: true},
		{UniqueID: "model.shop.none", Name: "none", Package: "shop"},
	}
	stats := Compute(models, DefaultOptions())

	if len(stats.Models[0].ContractIssues) != 1 {
		t.Errorf("unenforced contract should be flagged, got %v", stats.Models[0].ContractIssues)
	}
	if len(stats.Models[1].ContractIssues) != 0 {
		t.Errorf("enforced contract should not be flagged")
	}
	if len(stats.Models[2].ContractIssues) != 0 {
		t.Errorf("absent contract should not be flagged")
	}
	if stats.Overall.Contract.Tested != 1 {
		t.Errorf("expected 1 enforced contract, got %d", stats.Overall.Contract.Tested)
	}
}

func TestParseTestTypeFilter(t *testing.T) {
	for _, valid := range []string{"", "all", "generic", "singular"} {
		if _, err := ParseTestTypeFilter(valid); err != nil {
			t.Errorf("ParseTestTypeFilter(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseTestTypeFilter("bogus"); err == nil {
		t.Errorf("expected error for invalid test type")
	}
}
