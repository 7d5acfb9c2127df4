package coverage

import "github.com/hargabyte/dbtcov/internal/manifest"

// FilterInfo echoes the criteria a report was produced under.
type FilterInfo struct {
	Package     string   `yaml:"package,omitempty" json:"package,omitempty"`
	ModelNames  []string `yaml:"model_names,omitempty" json:"model_names,omitempty"`
	ModelPaths  []string `yaml:"model_paths,omitempty" json:"model_paths,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	TagMode     string   `yaml:"tag_mode,omitempty" json:"tag_mode,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty" json:"exclude_tags,omitempty"`
	TestType    string   `yaml:"test_type,omitempty" json:"test_type,omitempty"`
}

// ContractIssue flags a model whose contract needs attention.
type ContractIssue struct {
	Model  string   `yaml:"model" json:"model"`
	Issues []string `yaml:"issues" json:"issues"`
}

// Diagnostics surfaces anomalies absorbed while loading the manifest.
type Diagnostics struct {
	NodesSeen     int `yaml:"nodes_seen" json:"nodes_seen"`
	OrphanedTests int `yaml:"orphaned_tests" json:"orphaned_tests"`
}

// Report is the final coverage report: overall and per-package
// aggregates, optional per-model detail, contract issues, the threshold
// verdict, and load diagnostics. It is assembled once per run, carries
// no timestamps, and is read-only afterwards, so the same manifest and
// criteria always serialize to identical bytes.
type Report struct {
	Package        string            `yaml:"package,omitempty" json:"package,omitempty"`
	Filters        *FilterInfo       `yaml:"filters,omitempty" json:"filters,omitempty"`
	Summary        Aggregate         `yaml:"summary" json:"summary"`
	Packages       []PackageCoverage `yaml:"packages,omitempty" json:"packages,omitempty"`
	Models         []ModelCoverage   `yaml:"models,omitempty" json:"models,omitempty"`
	ContractIssues []ContractIssue   `yaml:"contract_issues,omitempty" json:"contract_issues,omitempty"`
	Verdict        Verdict           `yaml:"verdict" json:"verdict"`
	Diagnostics    Diagnostics       `yaml:"diagnostics" json:"diagnostics"`
}

// AssembleOptions controls how much detail the report carries.
type AssembleOptions struct {
	// Package labels the report when a single package was requested.
	Package string

	// Filters echoes the criteria the model set was produced under.
	Filters *FilterInfo

	// IncludeModels adds the per-model breakdown.
	IncludeModels bool

	// IncludeColumns keeps per-column detail on each model. Only
	// meaningful together with IncludeModels.
	IncludeColumns bool
}

// Assemble combines computed statistics, the threshold verdict, and
// load diagnostics into a report. It shapes data and performs no
// computation, so renderers and exporters can consume the result
// without knowledge of the underlying entities.
func Assemble(stats *Stats, verdict Verdict, diags manifest.Diagnostics, opts AssembleOptions) *Report {
	report := &Report{
		Package:  opts.Package,
		Filters:  opts.Filters,
		Summary:  stats.Overall,
		Packages: stats.Packages,
		Verdict:  verdict,
		Diagnostics: Diagnostics{
			NodesSeen:     diags.NodesSeen,
			OrphanedTests: diags.OrphanedTests,
		},
	}

	if opts.IncludeModels {
		report.Models = make([]ModelCoverage, len(stats.Models))
		copy(report.Models, stats.Models)
		if !opts.IncludeColumns {
			for i := range report.Models {
				report.Models[i].Columns = nil
			}
		}
	}

	for _, mc := range stats.Models {
		if len(mc.ContractIssues) > 0 {
			report.ContractIssues = append(report.ContractIssues, ContractIssue{
				Model:  mc.Name,
				Issues: mc.ContractIssues,
			})
		}
	}

	return report
}
