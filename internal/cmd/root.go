// Package cmd contains all CLI commands for dbtcov.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hargabyte/dbtcov/internal/manifest"
)

var (
	// Version is the current version of dbtcov
	Version = "0.1.0"

	// Global flags
	verbose       bool
	configPath    string
	forAgents     bool
	outputFormat  string
	outputDensity string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbtcov",
	Short: "Test coverage metrics for dbt projects",
	Long: `dbtcov computes test coverage metrics for dbt projects from the
manifest.json artifact that dbt writes under target/.

For every model it measures three independent coverage axes:
  - Column tests: the fraction of declared columns carrying at least
    one data test
  - Unit tests: whether the model has associated unit tests
  - Contracts: whether the model declares an enforced contract

Coverage is aggregated per package and overall, weighted by column
counts so large models carry proportional signal. Models can be
filtered by package, name pattern, path pattern, and tags, and the
aggregates can be checked against minimum thresholds for CI gating.

Output Format:
  All commands render text tables by default. Use --format to switch
  to JSON or YAML output, and --density to control the detail level
  (compact | normal | verbose).

Exit codes:
  0 = success, no supplied threshold failed
  1 = at least one supplied threshold failed
  2 = manifest not found or malformed

Examples:
  dbtcov report                            # Coverage for all packages
  dbtcov report --package my_project       # One package
  dbtcov check --unit-test-threshold 80    # CI gate
  dbtcov gaps --axis column                # Models missing column tests
  dbtcov history --limit 5                 # Recent recorded runs

See 'dbtcov <command> --help' for command-specific options.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStatus(err))
	}
}

// exitStatus maps a command error onto the exit contract: a missing or
// malformed manifest exits 2, anything else 1. Threshold failures never
// travel as errors; commands exit 1 themselves after rendering.
func exitStatus(err error) int {
	var ferr *manifest.FormatError
	if errors.As(err, &ferr) || errors.Is(err, manifest.ErrNotFound) {
		return 2
	}
	return 1
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: .dbtcov/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format (text|json|yaml)")
	rootCmd.PersistentFlags().StringVar(&outputDensity, "density", "normal", "Output density (compact|normal|verbose)")
	rootCmd.Flags().BoolVar(&forAgents, "for-agents", false, "Output machine-readable capability discovery JSON")

	// Set custom help function to intercept --for-agents flag
	originalHelp := rootCmd.HelpFunc()
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if forAgents {
			outputAgentHelp(cmd)
			return
		}
		originalHelp(cmd, args)
	})
}

// CommandInfo represents a command for agent discovery
type CommandInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Usage       string        `json:"usage"`
	Flags       []FlagInfo    `json:"flags,omitempty"`
	Subcommands []CommandInfo `json:"subcommands,omitempty"`
	Examples    []string      `json:"examples,omitempty"`
}

// FlagInfo represents a command flag for agent discovery
type FlagInfo struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
}

// outputAgentHelp outputs machine-readable JSON describing all commands
func outputAgentHelp(cmd *cobra.Command) {
	root := buildCommandInfo(cmd.Root())

	output := map[string]interface{}{
		"version":      Version,
		"commands":     root.Subcommands,
		"global_flags": root.Flags,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(output)
}

// buildCommandInfo recursively builds command information for agent discovery
func buildCommandInfo(cmd *cobra.Command) CommandInfo {
	info := CommandInfo{
		Name:        cmd.Name(),
		Description: cmd.Short,
		Usage:       cmd.UseLine(),
	}

	// Collect flags
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		info.Flags = append(info.Flags, FlagInfo{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Description: f.Usage,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
		})
	})

	// Collect subcommands
	for _, sub := range cmd.Commands() {
		if !sub.Hidden {
			info.Subcommands = append(info.Subcommands, buildCommandInfo(sub))
		}
	}

	// Extract examples from Example field if available
	if cmd.Example != "" {
		// Split by newline and filter empty lines
		lines := strings.Split(cmd.Example, "\n")
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				info.Examples = append(info.Examples, trimmed)
			}
		}
	}

	return info
}
