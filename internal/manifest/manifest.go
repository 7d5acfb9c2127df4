// Package manifest loads dbt manifest.json artifacts and resolves them
// into typed model, column, test, and unit test entities.
package manifest

import "fmt"

// Model represents a dbt model node together with its declared columns
// and the tests resolved against it.
type Model struct {
	UniqueID         string // Node identifier, globally unique within a manifest
	Name             string
	Path             string // Original file path recorded in the manifest
	Package          string
	Tags             []string
	Columns          []*Column // Declared columns in manifest order
	HasContract      bool      // A contract block is present on the node
	ContractEnforced bool
	UnitTests        []*UnitTest // Unit tests targeting this model
}

// column returns the declared column with the given name, or nil.
func (m *Model) column(name string) *Column {
	for _, c := range m.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Column belongs to exactly one model and records the data tests
// resolved to it.
type Column struct {
	Name  string
	Tests []*Test
}

// TestKind classifies a data test node.
type TestKind string

const (
	// TestGeneric is a schema test declared through test metadata.
	TestGeneric TestKind = "generic"
	// TestSingular is a standalone SQL test without test metadata.
	TestSingular TestKind = "singular"
)

// Test represents a generic or singular data test. Its column and model
// references are back-references resolved at load time against the model
// index; a test that resolves to nothing is dropped and counted as
// orphaned.
type Test struct {
	UniqueID string
	Kind     TestKind
	Column   string   // Target column name, empty for model-level tests
	ModelIDs []string // Model identifiers resolved from depends_on
}

// UnitTest represents a unit test declared against a model.
type UnitTest struct {
	UniqueID string
	Name     string
	Model    string // Target model name
	Package  string
}

// Diagnostics counts anomalies absorbed while loading. An orphaned
// reference is excluded from coverage counts but never fails the load.
type Diagnostics struct {
	NodesSeen     int // Total nodes in the manifest document
	OrphanedTests int // Tests whose column or model target did not resolve
}

// Manifest is the resolved entity graph for one manifest document.
// It is immutable after Load returns.
type Manifest struct {
	SchemaVersion string
	Models        []*Model // Manifest document order
	Tests         []*Test
	UnitTests     []*UnitTest
	Diagnostics   Diagnostics
}

// FormatError reports a manifest document that is missing required
// structure or carries an unrecognized schema version.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid manifest %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid manifest: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *FormatError) Unwrap() error {
	return e.Err
}
