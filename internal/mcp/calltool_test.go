package mcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/coverage"
)

const testManifest = `{
  "metadata": {"dbt_schema_version": "https://schemas.getdbt.com/dbt/manifest/v12.json"},
  "nodes": {
    "model.shop.orders": {
      "unique_id": "model.shop.orders",
      "name": "orders",
      "resource_type": "model",
      "package_name": "shop",
      "original_file_path": "models/marts/orders.sql",
      "tags": ["gold"],
      "contract": {"enforced": true},
      "columns": {
        "order_id": {"name": "order_id"},
        "amount": {"name": "amount"}
      }
    },
    "model.shop.customers": {
      "unique_id": "model.shop.customers",
      "name": "customers",
      "resource_type": "model",
      "package_name": "shop",
      "original_file_path": "models/marts/customers.sql",
      "columns": {"customer_id": {"name": "customer_id"}}
    },
    "test.shop.not_null_orders_order_id": {
      "unique_id": "test.shop.not_null_orders_order_id",
      "name": "not_null_orders_order_id",
      "resource_type": "test",
      "package_name": "shop",
      "column_name": "order_id",
      "depends_on": {"nodes": ["model.shop.orders"]},
      "test_metadata": {"name": "not_null", "kwargs": {}}
    }
  },
  "unit_tests": {
    "unit_test.shop.orders.totals": {
      "unique_id": "unit_test.shop.orders.totals",
      "name": "totals",
      "model": "orders",
      "package_name": "shop"
    }
  }
}`

// newTestServer builds a server around a fixture manifest without
// touching the working directory's config.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(manifestPath, []byte(testManifest), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	s := &Server{
		cfg:          config.DefaultConfig(),
		manifestPath: manifestPath,
		tools:        make(map[string]bool),
		lastActivity: time.Now(),
	}
	for _, name := range AllTools {
		s.tools[name] = true
	}
	return s
}

func TestGetToolSchemas(t *testing.T) {
	// Verify the schema registry has all 4 tools
	expectedTools := []string{
		"dbtcov_report", "dbtcov_check", "dbtcov_gaps", "dbtcov_history",
	}

	for _, name := range expectedTools {
		schema, ok := toolSchemaRegistry[name]
		if !ok {
			t.Errorf("toolSchemaRegistry missing tool: %s", name)
			continue
		}
		if schema.Name != name {
			t.Errorf("schema name mismatch: got %q, want %q", schema.Name, name)
		}
		if schema.Description == "" {
			t.Errorf("tool %s has empty description", name)
		}
	}

	if len(toolSchemaRegistry) != len(expectedTools) {
		t.Errorf("toolSchemaRegistry has %d tools, want %d", len(toolSchemaRegistry), len(expectedTools))
	}
}

func TestToolSchemaNoRequiredParams(t *testing.T) {
	// Every tool falls back to config or discovery, so no parameter
	// is required
	for name, schema := range toolSchemaRegistry {
		for _, p := range schema.Parameters {
			if p.Required {
				t.Errorf("tool %s param %s is marked required but should not be", name, p.Name)
			}
		}
	}
}

func TestAllToolsMatchesRegistry(t *testing.T) {
	// AllTools should match the schema registry
	registryNames := make([]string, 0, len(toolSchemaRegistry))
	for name := range toolSchemaRegistry {
		registryNames = append(registryNames, name)
	}
	sort.Strings(registryNames)

	allToolsCopy := make([]string, len(AllTools))
	copy(allToolsCopy, AllTools)
	sort.Strings(allToolsCopy)

	if len(registryNames) != len(allToolsCopy) {
		t.Errorf("schema registry has %d tools, AllTools has %d", len(registryNames), len(allToolsCopy))
	}

	for i, name := range registryNames {
		if i >= len(allToolsCopy) {
			t.Errorf("AllTools missing: %s", name)
			continue
		}
		if name != allToolsCopy[i] {
			t.Errorf("mismatch at index %d: registry=%s, AllTools=%s", i, name, allToolsCopy[i])
		}
	}
}

func TestDefaultToolsAreKnown(t *testing.T) {
	for _, name := range DefaultTools {
		if _, ok := toolSchemaRegistry[name]; !ok {
			t.Errorf("default tool %s missing from schema registry", name)
		}
	}
}

func TestCallToolUnknown(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.CallTool("dbtcov_nope", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestCallToolReport(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_report", map[string]interface{}{})
	if err != nil {
		t.Fatalf("call dbtcov_report: %v", err)
	}

	var report coverage.Report
	if err := json.Unmarshal([]byte(result), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}

	if report.Summary.Models != 2 {
		t.Errorf("summary.models = %d, want 2", report.Summary.Models)
	}
	if report.Summary.ColumnTest.Tested != 1 || report.Summary.ColumnTest.Total != 3 {
		t.Errorf("column test metric = %d/%d, want 1/3",
			report.Summary.ColumnTest.Tested, report.Summary.ColumnTest.Total)
	}
	if len(report.Models) != 2 {
		t.Errorf("expected per-model detail at normal density, got %d models", len(report.Models))
	}
}

func TestCallToolReportTagsFilter(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_report", map[string]interface{}{
		"tags": "gold",
	})
	if err != nil {
		t.Fatalf("call dbtcov_report: %v", err)
	}

	var report coverage.Report
	if err := json.Unmarshal([]byte(result), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Summary.Models != 1 {
		t.Errorf("summary.models = %d, want 1 gold model", report.Summary.Models)
	}
}

func TestCallToolReportCompactDensity(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_report", map[string]interface{}{
		"density": "compact",
	})
	if err != nil {
		t.Fatalf("call dbtcov_report: %v", err)
	}

	var report coverage.Report
	if err := json.Unmarshal([]byte(result), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(report.Models) != 0 {
		t.Errorf("compact density should drop per-model detail, got %d models", len(report.Models))
	}
}

func TestCallToolReportInvalidDensity(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.CallTool("dbtcov_report", map[string]interface{}{
		"density": "maximal",
	}); err == nil {
		t.Error("expected error for invalid density")
	}
}

func TestCallToolCheck(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_check", map[string]interface{}{
		"column_test_threshold": 100.0,
	})
	if err != nil {
		t.Fatalf("call dbtcov_check: %v", err)
	}

	var check struct {
		Passed   bool               `json:"passed"`
		Failures []coverage.Failure `json:"failures"`
	}
	if err := json.Unmarshal([]byte(result), &check); err != nil {
		t.Fatalf("unmarshal check result: %v", err)
	}

	if check.Passed {
		t.Error("expected check to fail at 100% column threshold")
	}
	if len(check.Failures) != 1 || check.Failures[0].Axis != coverage.AxisColumnTest {
		t.Errorf("expected a single column_test failure, got %+v", check.Failures)
	}
}

func TestCallToolCheckNoThresholds(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.CallTool("dbtcov_check", map[string]interface{}{}); err == nil {
		t.Error("expected error when no thresholds are supplied")
	}
}

func TestCallToolGaps(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_gaps", map[string]interface{}{})
	if err != nil {
		t.Fatalf("call dbtcov_gaps: %v", err)
	}

	var gaps coverage.GapsReport
	if err := json.Unmarshal([]byte(result), &gaps); err != nil {
		t.Fatalf("unmarshal gaps: %v", err)
	}

	// orders misses one column test; customers misses everything
	if gaps.Total != 4 {
		t.Errorf("gaps.total = %d, want 4", gaps.Total)
	}
	if len(gaps.Gaps) == 0 || gaps.Gaps[0].Model != "customers" {
		t.Errorf("expected customers first as worst gap, got %+v", gaps.Gaps)
	}
}

func TestCallToolGapsAxisAndLimit(t *testing.T) {
	s := newTestServer(t)

	result, err := s.CallTool("dbtcov_gaps", map[string]interface{}{
		"axis":  "column",
		"limit": 1.0,
	})
	if err != nil {
		t.Fatalf("call dbtcov_gaps: %v", err)
	}

	var gaps coverage.GapsReport
	if err := json.Unmarshal([]byte(result), &gaps); err != nil {
		t.Fatalf("unmarshal gaps: %v", err)
	}
	if gaps.Total != 1 {
		t.Errorf("gaps.total = %d, want 1 after limit", gaps.Total)
	}
	if len(gaps.Gaps) == 1 && gaps.Gaps[0].Axis != coverage.AxisColumnTest {
		t.Errorf("gap axis = %s, want %s", gaps.Gaps[0].Axis, coverage.AxisColumnTest)
	}
}

func TestCallToolGapsInvalidAxis(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.CallTool("dbtcov_gaps", map[string]interface{}{
		"axis": "latency",
	}); err == nil {
		t.Error("expected error for invalid axis")
	}
}
