// Package mcp provides an MCP (Model Context Protocol) server for dbtcov.
// This allows AI agents to query dbt test coverage through MCP tools instead of CLI commands.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/coverage"
	"github.com/hargabyte/dbtcov/internal/filter"
	"github.com/hargabyte/dbtcov/internal/history"
	"github.com/hargabyte/dbtcov/internal/manifest"
	"github.com/hargabyte/dbtcov/internal/output"
)

// Server wraps the MCP server with dbtcov-specific functionality.
// Tool calls resolve the manifest and history store fresh on every
// invocation, so a dbt build between calls is picked up without a
// restart.
type Server struct {
	mcpServer    *server.MCPServer
	cfg          *config.Config
	manifestPath string
	tools        map[string]bool
	lastActivity time.Time
	timeout      time.Duration
	mu           sync.RWMutex
}

// Config holds server configuration
type Config struct {
	ManifestPath string        // Manifest to analyze (empty = auto-discover per call)
	Tools        []string      // Which tools to expose (empty = default set)
	Timeout      time.Duration // Inactivity timeout (0 = no timeout)
}

// DefaultTools is the default set of tools to expose. dbtcov_history
// needs an initialized project, so it is opt-in.
var DefaultTools = []string{"dbtcov_report", "dbtcov_check", "dbtcov_gaps"}

// AllTools lists all available tools
var AllTools = []string{"dbtcov_report", "dbtcov_check", "dbtcov_gaps", "dbtcov_history"}

// New creates a new MCP server for dbtcov
func New(cfg Config) (*Server, error) {
	appCfg, err := config.Load(".")
	if err != nil {
		appCfg = config.DefaultConfig()
	}

	mcpServer := server.NewMCPServer(
		"dbtcov",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcpServer:    mcpServer,
		cfg:          appCfg,
		manifestPath: cfg.ManifestPath,
		tools:        make(map[string]bool),
		lastActivity: time.Now(),
		timeout:      cfg.Timeout,
	}

	toolsToRegister := cfg.Tools
	if len(toolsToRegister) == 0 {
		toolsToRegister = DefaultTools
	}

	for _, toolName := range toolsToRegister {
		if err := s.registerTool(toolName); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", toolName, err)
		}
		s.tools[toolName] = true
	}

	return s, nil
}

// registerTool registers a single tool with the MCP server
func (s *Server) registerTool(name string) error {
	switch name {
	case "dbtcov_report":
		return s.registerReportTool()
	case "dbtcov_check":
		return s.registerCheckTool()
	case "dbtcov_gaps":
		return s.registerGapsTool()
	case "dbtcov_history":
		return s.registerHistoryTool()
	default:
		return fmt.Errorf("unknown tool: %s", name)
	}
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	// Start timeout checker if timeout is set
	if s.timeout > 0 {
		go s.timeoutChecker()
	}

	return server.ServeStdio(s.mcpServer)
}

// timeoutChecker monitors for inactivity and exits if timeout exceeded
func (s *Server) timeoutChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		elapsed := time.Since(s.lastActivity)
		s.mu.RUnlock()

		if elapsed > s.timeout {
			fmt.Fprintf(os.Stderr, "dbtcov serve: timeout after %v of inactivity\n", s.timeout)
			os.Exit(0)
		}
	}
}

// updateActivity updates the last activity timestamp
func (s *Server) updateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// ListTools returns the list of registered tools
func (s *Server) ListTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]string, 0, len(s.tools))
	for t := range s.tools {
		tools = append(tools, t)
	}
	return tools
}

// ToolSchema describes a tool's name, description, and parameters.
type ToolSchema struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Parameters  []ParameterSchema `json:"parameters" yaml:"parameters"`
}

// ParameterSchema describes a single tool parameter.
type ParameterSchema struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// toolSchemaRegistry holds the schema definitions for all tools.
// These mirror the mcp.NewTool() definitions in the register*Tool() functions.
var toolSchemaRegistry = map[string]ToolSchema{
	"dbtcov_report": {
		Name:        "dbtcov_report",
		Description: "Compute dbt test coverage from a manifest. Returns overall aggregates, per-package breakdown, and per-model detail.",
		Parameters: []ParameterSchema{
			{Name: "manifest", Type: "string", Description: "Path to manifest.json (default: auto-discover under target/)"},
			{Name: "package", Type: "string", Description: "Restrict to one dbt package (default: all packages)"},
			{Name: "tags", Type: "string", Description: "Comma-separated tags models must carry"},
			{Name: "density", Type: "string", Description: "Detail level: compact, normal, verbose (default: normal)"},
		},
	},
	"dbtcov_check": {
		Name:        "dbtcov_check",
		Description: "Evaluate coverage thresholds against a manifest. Returns pass/fail with per-axis failures.",
		Parameters: []ParameterSchema{
			{Name: "manifest", Type: "string", Description: "Path to manifest.json (default: auto-discover under target/)"},
			{Name: "package", Type: "string", Description: "Restrict to one dbt package (default: all packages)"},
			{Name: "column_test_threshold", Type: "number", Description: "Minimum column test coverage percentage"},
			{Name: "unit_test_threshold", Type: "number", Description: "Minimum unit test coverage percentage"},
			{Name: "contract_threshold", Type: "number", Description: "Minimum contract coverage percentage"},
		},
	},
	"dbtcov_gaps": {
		Name:        "dbtcov_gaps",
		Description: "List models below a coverage threshold, worst first. Reports standings only, no test suggestions.",
		Parameters: []ParameterSchema{
			{Name: "manifest", Type: "string", Description: "Path to manifest.json (default: auto-discover under target/)"},
			{Name: "package", Type: "string", Description: "Restrict to one dbt package (default: all packages)"},
			{Name: "threshold", Type: "number", Description: "Coverage percentage below which a model is listed (default: 100)"},
			{Name: "axis", Type: "string", Description: "Coverage axis: column, unit, contract, or any (default: any)"},
			{Name: "limit", Type: "number", Description: "Maximum gaps returned"},
		},
	},
	"dbtcov_history": {
		Name:        "dbtcov_history",
		Description: "List recorded coverage runs, newest first. Requires an initialized project with recorded runs.",
		Parameters: []ParameterSchema{
			{Name: "package", Type: "string", Description: "Filter runs to one package"},
			{Name: "limit", Type: "number", Description: "Maximum runs returned (default: 10)"},
		},
	},
}

// GetToolSchemas returns schemas for all registered tools.
func (s *Server) GetToolSchemas() []ToolSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schemas := make([]ToolSchema, 0, len(s.tools))
	for name := range s.tools {
		if schema, ok := toolSchemaRegistry[name]; ok {
			schemas = append(schemas, schema)
		}
	}
	return schemas
}

// CallTool dispatches a tool call by name with the given arguments.
// Returns the JSON result string or an error.
func (s *Server) CallTool(name string, args map[string]interface{}) (string, error) {
	s.mu.RLock()
	registered := s.tools[name]
	s.mu.RUnlock()

	if !registered {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	switch name {
	case "dbtcov_report":
		manifestPath, _ := args["manifest"].(string)
		pkg, _ := args["package"].(string)
		tags, _ := args["tags"].(string)
		density, _ := args["density"].(string)
		return s.executeReport(manifestPath, pkg, tags, density)

	case "dbtcov_check":
		manifestPath, _ := args["manifest"].(string)
		pkg, _ := args["package"].(string)
		return s.executeCheck(manifestPath, pkg, thresholdArgs(args))

	case "dbtcov_gaps":
		manifestPath, _ := args["manifest"].(string)
		pkg, _ := args["package"].(string)
		threshold := 100.0
		if t, ok := args["threshold"].(float64); ok {
			threshold = t
		}
		axis, _ := args["axis"].(string)
		limit := 0
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		return s.executeGaps(manifestPath, pkg, threshold, axis, limit)

	case "dbtcov_history":
		pkg, _ := args["package"].(string)
		limit := 10
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		return s.executeHistory(pkg, limit)

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

// thresholdArgs extracts the optional per-axis thresholds from tool
// arguments. Absent parameters stay nil and are never evaluated.
func thresholdArgs(args map[string]interface{}) coverage.Thresholds {
	var t coverage.Thresholds
	if v, ok := args["column_test_threshold"].(float64); ok {
		t.ColumnTest = &v
	}
	if v, ok := args["unit_test_threshold"].(float64); ok {
		t.UnitTest = &v
	}
	if v, ok := args["contract_threshold"].(float64); ok {
		t.Contract = &v
	}
	return t
}

// registerReportTool registers the dbtcov_report tool
func (s *Server) registerReportTool() error {
	tool := mcp.NewTool("dbtcov_report",
		mcp.WithDescription("Compute dbt test coverage from a manifest. Returns overall aggregates, per-package breakdown, and per-model detail."),
		mcp.WithString("manifest",
			mcp.Description("Path to manifest.json (default: auto-discover under target/)"),
		),
		mcp.WithString("package",
			mcp.Description("Restrict to one dbt package (default: all packages)"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags models must carry"),
		),
		mcp.WithString("density",
			mcp.Description("Detail level: compact, normal, verbose (default: normal)"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleReport)
	return nil
}

// registerCheckTool registers the dbtcov_check tool
func (s *Server) registerCheckTool() error {
	tool := mcp.NewTool("dbtcov_check",
		mcp.WithDescription("Evaluate coverage thresholds against a manifest. Returns pass/fail with per-axis failures."),
		mcp.WithString("manifest",
			mcp.Description("Path to manifest.json (default: auto-discover under target/)"),
		),
		mcp.WithString("package",
			mcp.Description("Restrict to one dbt package (default: all packages)"),
		),
		mcp.WithNumber("column_test_threshold",
			mcp.Description("Minimum column test coverage percentage"),
		),
		mcp.WithNumber("unit_test_threshold",
			mcp.Description("Minimum unit test coverage percentage"),
		),
		mcp.WithNumber("contract_threshold",
			mcp.Description("Minimum contract coverage percentage"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleCheck)
	return nil
}

// registerGapsTool registers the dbtcov_gaps tool
func (s *Server) registerGapsTool() error {
	tool := mcp.NewTool("dbtcov_gaps",
		mcp.WithDescription("List models below a coverage threshold, worst first. Reports standings only, no test suggestions."),
		mcp.WithString("manifest",
			mcp.Description("Path to manifest.json (default: auto-discover under target/)"),
		),
		mcp.WithString("package",
			mcp.Description("Restrict to one dbt package (default: all packages)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Coverage percentage below which a model is listed (default: 100)"),
		),
		mcp.WithString("axis",
			mcp.Description("Coverage axis: column, unit, contract, or any (default: any)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum gaps returned"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleGaps)
	return nil
}

// registerHistoryTool registers the dbtcov_history tool
func (s *Server) registerHistoryTool() error {
	tool := mcp.NewTool("dbtcov_history",
		mcp.WithDescription("List recorded coverage runs, newest first. Requires an initialized project with recorded runs."),
		mcp.WithString("package",
			mcp.Description("Filter runs to one package"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs returned (default: 10)"),
		),
	)

	s.mcpServer.AddTool(tool, s.handleHistory)
	return nil
}

// Tool handlers

func (s *Server) handleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	manifestPath, _ := args["manifest"].(string)
	pkg, _ := args["package"].(string)
	tags, _ := args["tags"].(string)
	density, _ := args["density"].(string)

	result, err := s.executeReport(manifestPath, pkg, tags, density)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	manifestPath, _ := args["manifest"].(string)
	pkg, _ := args["package"].(string)

	result, err := s.executeCheck(manifestPath, pkg, thresholdArgs(args))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleGaps(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	manifestPath, _ := args["manifest"].(string)
	pkg, _ := args["package"].(string)

	threshold := 100.0
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}

	axis, _ := args["axis"].(string)

	limit := 0
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	result, err := s.executeGaps(manifestPath, pkg, threshold, axis, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.updateActivity()

	args := req.GetArguments()
	pkg, _ := args["package"].(string)

	limit := 10
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	result, err := s.executeHistory(pkg, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(result), nil
}

// Execution functions (implementations)

// loadManifest resolves the manifest path for one tool call:
// explicit parameter, then server option, then config, then discovery.
func (s *Server) loadManifest(manifestPath string) (*manifest.Manifest, error) {
	path := manifestPath
	if path == "" {
		path = s.manifestPath
	}
	if path == "" {
		path = s.cfg.Manifest.Path
	}
	if path == "" {
		discovered, err := manifest.Discover(".")
		if err != nil {
			return nil, fmt.Errorf("no manifest found: run 'dbt compile' or pass the manifest parameter")
		}
		path = discovered
	}
	return manifest.Load(path)
}

// resolvePackage falls back to the configured default package.
func (s *Server) resolvePackage(pkg string) string {
	if pkg == "" {
		return s.cfg.Manifest.Package
	}
	return pkg
}

func (s *Server) executeReport(manifestPath, pkg, tags, density string) (string, error) {
	det := output.DefaultDensity
	if density != "" {
		parsed, err := output.ParseDensity(density)
		if err != nil {
			return "", err
		}
		det = parsed
	}

	man, err := s.loadManifest(manifestPath)
	if err != nil {
		return "", err
	}

	pkg = s.resolvePackage(pkg)
	criteria := filter.Criteria{Package: pkg}
	if tags != "" {
		criteria.Tags = []string{tags}
	}

	models := filter.Apply(man.Models, criteria)
	stats := coverage.Compute(models, coverage.DefaultOptions())
	verdict := coverage.Evaluate(stats.Overall, coverage.Thresholds{})

	report := coverage.Assemble(stats, verdict, man.Diagnostics, coverage.AssembleOptions{
		Package:        pkg,
		IncludeModels:  det.IncludesModels(),
		IncludeColumns: det.IncludesColumns(),
	})

	return toJSON(report)
}

func (s *Server) executeCheck(manifestPath, pkg string, t coverage.Thresholds) (string, error) {
	// Fall back to configured thresholds for absent parameters
	if t.ColumnTest == nil {
		t.ColumnTest = s.cfg.Thresholds.ColumnTest
	}
	if t.UnitTest == nil {
		t.UnitTest = s.cfg.Thresholds.UnitTest
	}
	if t.Contract == nil {
		t.Contract = s.cfg.Thresholds.Contract
	}
	if !t.Any() {
		return "", fmt.Errorf("no thresholds supplied: pass a threshold parameter or configure thresholds in %s", config.ConfigFileName)
	}

	man, err := s.loadManifest(manifestPath)
	if err != nil {
		return "", err
	}

	pkg = s.resolvePackage(pkg)
	models := filter.Apply(man.Models, filter.Criteria{Package: pkg})
	stats := coverage.Compute(models, coverage.DefaultOptions())
	verdict := coverage.Evaluate(stats.Overall, t)

	result := map[string]interface{}{
		"passed":     verdict.Passed,
		"thresholds": t,
		"summary":    stats.Overall,
	}
	if pkg != "" {
		result["package"] = pkg
	}
	if len(verdict.Failures) > 0 {
		result["failures"] = verdict.Failures
	}

	return toJSON(result)
}

func (s *Server) executeGaps(manifestPath, pkg string, threshold float64, axis string, limit int) (string, error) {
	parsedAxis, err := coverage.ParseAxis(axis)
	if err != nil {
		return "", err
	}

	man, err := s.loadManifest(manifestPath)
	if err != nil {
		return "", err
	}

	pkg = s.resolvePackage(pkg)
	models := filter.Apply(man.Models, filter.Criteria{Package: pkg})
	stats := coverage.Compute(models, coverage.DefaultOptions())

	gaps := coverage.FindGaps(stats, coverage.GapsOptions{
		Axis:      parsedAxis,
		Threshold: threshold,
		Limit:     limit,
	})

	return toJSON(gaps)
}

func (s *Server) executeHistory(pkg string, limit int) (string, error) {
	configDir, err := config.FindConfigDir(".")
	if err != nil {
		return "", fmt.Errorf("no run history: run 'dbtcov init' and record a report first")
	}

	store, err := history.Open(configDir)
	if err != nil {
		return "", fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(pkg, limit)
	if err != nil {
		return "", err
	}
	if runs == nil {
		runs = []history.Run{}
	}

	result := map[string]interface{}{
		"total": len(runs),
		"runs":  runs,
	}
	if pkg != "" {
		result["package"] = pkg
	}

	return toJSON(result)
}

// Helper functions

func toJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
