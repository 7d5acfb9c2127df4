package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Recognized schema versions carry this marker, e.g.
// https://schemas.getdbt.com/dbt/manifest/v12.json
const schemaVersionMarker = "/manifest/"

// Load reads and resolves a manifest document from path. The returned
// Manifest is fully linked: tests are attached to the columns and models
// they target, and references that cannot be resolved are dropped and
// counted in Diagnostics. Only a malformed document fails the load.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parse(data, path)
}

type rawManifest struct {
	Metadata  rawMetadata     `json:"metadata"`
	Nodes     json.RawMessage `json:"nodes"`
	UnitTests json.RawMessage `json:"unit_tests"`
}

type rawMetadata struct {
	SchemaVersion string `json:"dbt_schema_version"`
}

type rawNode struct {
	UniqueID         string           `json:"unique_id"`
	Name             string           `json:"name"`
	ResourceType     string           `json:"resource_type"`
	PackageName      string           `json:"package_name"`
	OriginalFilePath string           `json:"original_file_path"`
	Tags             []string         `json:"tags"`
	Columns          json.RawMessage  `json:"columns"`
	Config           rawNodeConfig    `json:"config"`
	Contract         *rawContract     `json:"contract"`
	ColumnName       string           `json:"column_name"`
	DependsOn        rawDependsOn     `json:"depends_on"`
	TestMetadata     *rawTestMetadata `json:"test_metadata"`
}

type rawNodeConfig struct {
	Materialized string `json:"materialized"`
}

type rawContract struct {
	Enforced bool `json:"enforced"`
}

type rawDependsOn struct {
	Nodes []string `json:"nodes"`
}

type rawTestMetadata struct {
	Name   string         `json:"name"`
	Kwargs map[string]any `json:"kwargs"`
}

type rawUnitTest struct {
	UniqueID    string `json:"unique_id"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	PackageName string `json:"package_name"`
}

func parse(data []byte, path string) (*Manifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Path: path, Reason: "not a manifest document", Err: err}
	}
	version := raw.Metadata.SchemaVersion
	if version == "" {
		return nil, &FormatError{Path: path, Reason: "missing schema version"}
	}
	if !strings.Contains(version, schemaVersionMarker) {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("unrecognized schema version %q", version)}
	}
	if len(raw.Nodes) == 0 {
		return nil, &FormatError{Path: path, Reason: "missing nodes section"}
	}

	m := &Manifest{SchemaVersion: version}

	// First pass: partition nodes by resource type. Models are built
	// immediately, test nodes are held back until the model index exists.
	var testNodes []rawNode
	err := walkObject(raw.Nodes, func(id string, value json.RawMessage) error {
		m.Diagnostics.NodesSeen++
		var node rawNode
		if err := json.Unmarshal(value, &node); err != nil {
			return &FormatError{Path: path, Reason: fmt.Sprintf("malformed node %s", id), Err: err}
		}
		if node.UniqueID == "" {
			node.UniqueID = id
		}
		switch node.ResourceType {
		case "model":
			// Ephemeral models never materialize columns to test.
			if node.Config.Materialized == "ephemeral" {
				return nil
			}
			model, err := buildModel(&node, path)
			if err != nil {
				return err
			}
			m.Models = append(m.Models, model)
		case "test":
			testNodes = append(testNodes, node)
		}
		return nil
	})
	if err != nil {
		return nil, asFormatError(err, path, "malformed nodes section")
	}

	// Back-references resolve through this index; it is discarded when
	// parse returns.
	byID := make(map[string]*Model, len(m.Models))
	for _, model := range m.Models {
		byID[model.UniqueID] = model
	}

	for i := range testNodes {
		resolveTest(m, &testNodes[i], byID)
	}

	err = walkObject(raw.UnitTests, func(id string, value json.RawMessage) error {
		var node rawUnitTest
		if err := json.Unmarshal(value, &node); err != nil {
			return &FormatError{Path: path, Reason: fmt.Sprintf("malformed unit test %s", id), Err: err}
		}
		if node.UniqueID == "" {
			node.UniqueID = id
		}
		resolveUnitTest(m, &node)
		return nil
	})
	if err != nil {
		return nil, asFormatError(err, path, "malformed unit_tests section")
	}

	return m, nil
}

func buildModel(node *rawNode, path string) (*Model, error) {
	model := &Model{
		UniqueID: node.UniqueID,
		Name:     node.Name,
		Path:     node.OriginalFilePath,
		Package:  node.PackageName,
		Tags:     node.Tags,
	}
	if node.Contract != nil {
		model.HasContract = true
		model.ContractEnforced = node.Contract.Enforced
	}
	err := walkObject(node.Columns, func(name string, _ json.RawMessage) error {
		model.Columns = append(model.Columns, &Column{Name: name})
		return nil
	})
	if err != nil {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("malformed columns for %s", node.UniqueID), Err: err}
	}
	return model, nil
}

// resolveTest attaches a test node to every resolved model, and to the
// named column on each model that declares it. A test that attaches
// nowhere is dropped as orphaned.
func resolveTest(m *Manifest, node *rawNode, byID map[string]*Model) {
	test := &Test{UniqueID: node.UniqueID, Kind: TestSingular, Column: node.ColumnName}
	if node.TestMetadata != nil {
		test.Kind = TestGeneric
		if test.Column == "" {
			if col, ok := node.TestMetadata.Kwargs["column"].(string); ok {
				test.Column = col
			}
		}
	}

	attached := false
	for _, dep := range node.DependsOn.Nodes {
		model, ok := byID[dep]
		if !ok {
			continue
		}
		test.ModelIDs = append(test.ModelIDs, dep)
		if test.Column == "" {
			// Model-level test: resolved, but no column to mark.
			attached = true
			continue
		}
		if col := model.column(test.Column); col != nil {
			col.Tests = append(col.Tests, test)
			attached = true
		}
	}
	if !attached {
		m.Diagnostics.OrphanedTests++
		return
	}
	m.Tests = append(m.Tests, test)
}

// resolveUnitTest attaches a unit test to the model it names within its
// own package.
func resolveUnitTest(m *Manifest, node *rawUnitTest) {
	ut := &UnitTest{
		UniqueID: node.UniqueID,
		Name:     node.Name,
		Model:    node.Model,
		Package:  node.PackageName,
	}
	for _, model := range m.Models {
		if model.Name == ut.Model && model.Package == ut.Package {
			model.UnitTests = append(model.UnitTests, ut)
			m.UnitTests = append(m.UnitTests, ut)
			return
		}
	}
	m.Diagnostics.OrphanedTests++
}

// walkObject visits the members of a JSON object in document order.
// Decoding into a map would randomize order across runs; model and
// column order must follow the document so repeated loads of the same
// manifest produce identical output.
func walkObject(raw json.RawMessage, visit func(key string, value json.RawMessage) error) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := visit(key, value); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

// asFormatError passes through FormatError values and wraps anything
// else with the given reason.
func asFormatError(err error, path, reason string) error {
	var ferr *FormatError
	if errors.As(err, &ferr) {
		return err
	}
	return &FormatError{Path: path, Reason: reason, Err: err}
}
