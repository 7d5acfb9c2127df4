package filter

import (
	"reflect"
	"testing"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

func testModels() []*manifest.Model {
	return []*manifest.Model{
		{UniqueID: "model.shop.orders", Name: "orders", Path: "models/marts/orders.sql", Package: "shop", Tags: []string{"gold", "silver", "bronze"}},
		{UniqueID: "model.shop.customers", Name: "customers", Path: "models/marts/customers.sql", Package: "shop", Tags: []string{"gold"}},
		{UniqueID: "model.shop.stg_orders", Name: "stg_orders", Path: "models/staging/stg_orders.sql", Package: "shop", Tags: []string{"staging", "cicd"}},
		{UniqueID: "model.other.events", Name: "events", Path: "models/events.sql", Package: "other"},
	}
}

func names(models []*manifest.Model) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.Name)
	}
	return out
}

func TestApplyNoCriteria(t *testing.T) {
	models := testModels()
	got := Apply(models, Criteria{})
	if len(got) != len(models) {
		t.Fatalf("expected all %d models, got %d", len(models), len(got))
	}
	// Order is preserved and entities are the same references.
	for i := range models {
		if got[i] != models[i] {
			t.Errorf("model %d is not the same reference", i)
		}
	}
}

func TestApplyPackage(t *testing.T) {
	got := Apply(testModels(), Criteria{Package: "shop"})
	want := []string{"orders", "customers", "stg_orders"}
	if !reflect.DeepEqual(names(got), want) {
		t.Errorf("expected %v, got %v", want, names(got))
	}
}

func TestApplyNamePatterns(t *testing.T) {
	models := testModels()

	got := Apply(models, Criteria{NamePatterns: []string{"stg_*"}})
	if !reflect.DeepEqual(names(got), []string{"stg_orders"}) {
		t.Errorf("stg_* should match stg_orders, got %v", names(got))
	}

	// Any pattern in the list may match.
	got = Apply(models, Criteria{NamePatterns: []string{"orders", "customers"}})
	if !reflect.DeepEqual(names(got), []string{"orders", "customers"}) {
		t.Errorf("expected orders and customers, got %v", names(got))
	}
}

func TestApplyPathPatterns(t *testing.T) {
	// * crosses directory separators.
	got := Apply(testModels(), Criteria{PathPatterns: []string{"models/marts/*"}})
	want := []string{"orders", "customers"}
	if !reflect.DeepEqual(names(got), want) {
		t.Errorf("expected %v, got %v", want, names(got))
	}

	got = Apply(testModels(), Criteria{PathPatterns: []string{"*.sql"}})
	if len(got) != 4 {
		t.Errorf("*.sql should match every model, got %v", names(got))
	}
}

func TestApplyTagsAllMode(t *testing.T) {
	// orders carries {gold, silver, bronze} and matches; customers
	// carries {gold} alone and does not.
	got := Apply(testModels(), Criteria{Tags: []string{"gold", "silver"}})
	if !reflect.DeepEqual(names(got), []string{"orders"}) {
		t.Errorf("ALL mode: expected [orders], got %v", names(got))
	}
}

func TestApplyTagsAnyMode(t *testing.T) {
	got := Apply(testModels(), Criteria{Tags: []string{"gold", "silver"}, TagMode: TagModeAny})
	want := []string{"orders", "customers"}
	if !reflect.DeepEqual(names(got), want) {
		t.Errorf("ANY mode: expected %v, got %v", want, names(got))
	}
}

func TestApplyTagsCommaSplit(t *testing.T) {
	// A single comma-separated entry behaves like separate tags.
	got := Apply(testModels(), Criteria{Tags: []string{"gold,silver"}})
	if !reflect.DeepEqual(names(got), []string{"orders"}) {
		t.Errorf("expected [orders], got %v", names(got))
	}
}

func TestApplyExcludeTags(t *testing.T) {
	got := Apply(testModels(), Criteria{Package: "shop", ExcludeTags: []string{"cicd"}})
	want := []string{"orders", "customers"}
	if !reflect.DeepEqual(names(got), want) {
		t.Errorf("expected %v, got %v", want, names(got))
	}
}

func TestApplyConjunction(t *testing.T) {
	got := Apply(testModels(), Criteria{
		Package:      "shop",
		NamePatterns: []string{"*orders*"},
		PathPatterns: []string{"models/marts/*"},
		Tags:         []string{"gold"},
	})
	if !reflect.DeepEqual(names(got), []string{"orders"}) {
		t.Errorf("expected [orders], got %v", names(got))
	}
}

func TestApplyEmptyResult(t *testing.T) {
	got := Apply(testModels(), Criteria{Package: "missing"})
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", names(got))
	}
}

func TestApplyIdempotent(t *testing.T) {
	c := Criteria{Package: "shop", Tags: []string{"gold"}, TagMode: TagModeAny}
	models := testModels()

	once := Apply(models, c)
	twice := Apply(once, c)
	if !reflect.DeepEqual(names(once), names(twice)) {
		t.Errorf("filtering is not idempotent: %v vs %v", names(once), names(twice))
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"orders", "orders", true},
		{"orders", "orders_v2", false},
		{"*", "anything", true},
		{"*", "", true},
		{"stg_*", "stg_orders", true},
		{"stg_*", "orders", false},
		{"*_orders", "stg_orders", true},
		{"*orders*", "stg_orders_v2", true},
		{"models/*/orders.sql", "models/marts/orders.sql", true},
		{"models/*", "models/marts/orders.sql", true},
		{"order?", "orders", true},
		{"order?", "order", false},
		{"Orders", "orders", false},
		{"", "", true},
		{"", "x", false},
		{"a*b*c", "axxbxxc", true},
		{"a*b*c", "axxcxxb", false},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.name); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}
