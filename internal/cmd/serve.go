package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/mcp"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server for AI agent integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets AI agents query dbt test coverage through MCP tools instead
of spawning CLI commands. The manifest is re-resolved on every tool
call, so a dbt build between calls is picked up without a restart.

Available Tools:
  dbtcov_report   Coverage aggregates and per-model detail
  dbtcov_check    Threshold evaluation with pass/fail verdict
  dbtcov_gaps     Models below a coverage threshold, worst first
  dbtcov_history  Recorded runs (needs an initialized project)

Examples:
  dbtcov serve                             # Start with default tools
  dbtcov serve --tools report,gaps         # Expose specific tools only
  dbtcov serve --timeout 30m               # Auto-stop after inactivity
  dbtcov serve --manifest build/manifest.json
  dbtcov serve --status                    # Check if server is running
  dbtcov serve --stop                      # Stop running server
  dbtcov serve --list-tools                # Show available tools`,
	RunE: runServe,
}

var (
	serveManifest  string
	serveTools     string
	serveTimeout   string
	serveStatus    bool
	serveStop      bool
	serveListTools bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveManifest, "manifest", "", "Path to manifest.json (default: auto-discover per call)")
	serveCmd.Flags().StringVar(&serveTools, "tools", "", "Comma-separated list of tools to expose (default: report,check,gaps)")
	serveCmd.Flags().StringVar(&serveTimeout, "timeout", "30m", "Inactivity timeout (0 for no timeout)")
	serveCmd.Flags().BoolVar(&serveStatus, "status", false, "Check if server is running")
	serveCmd.Flags().BoolVar(&serveStop, "stop", false, "Stop running server")
	serveCmd.Flags().BoolVar(&serveListTools, "list-tools", false, "List available tools")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Handle --list-tools
	if serveListTools {
		fmt.Println("Available MCP tools:")
		fmt.Println()
		fmt.Println("  dbtcov_report   Coverage aggregates and per-model detail")
		fmt.Println("  dbtcov_check    Threshold evaluation with pass/fail verdict")
		fmt.Println("  dbtcov_gaps     Models below a coverage threshold, worst first")
		fmt.Println("  dbtcov_history  Recorded runs (needs an initialized project)")
		fmt.Println()
		fmt.Println("Default set: report, check, gaps")
		return nil
	}

	// Handle --status
	if serveStatus {
		return checkServerStatus()
	}

	// Handle --stop
	if serveStop {
		return stopServer()
	}

	// Parse timeout
	timeout, err := parseDuration(serveTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	// Parse tools
	var tools []string
	if serveTools != "" {
		for _, t := range strings.Split(serveTools, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				// Allow shorthand (report -> dbtcov_report)
				if !strings.HasPrefix(t, "dbtcov_") {
					t = "dbtcov_" + t
				}
				tools = append(tools, t)
			}
		}
	}

	// Create and start server
	server, err := mcp.New(mcp.Config{
		ManifestPath: serveManifest,
		Tools:        tools,
		Timeout:      timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Write PID file
	if err := writePIDFile(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not write PID file: %v\n", err)
	}
	defer removePIDFile()

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\ndbtcov serve: shutting down\n")
		removePIDFile()
		os.Exit(0)
	}()

	// Log startup info to stderr (stdout is for MCP protocol)
	fmt.Fprintf(os.Stderr, "dbtcov serve: starting MCP server\n")
	fmt.Fprintf(os.Stderr, "dbtcov serve: tools: %v\n", server.ListTools())
	if timeout > 0 {
		fmt.Fprintf(os.Stderr, "dbtcov serve: timeout: %v\n", timeout)
	}

	// Start serving
	return server.ServeStdio()
}

func parseDuration(s string) (time.Duration, error) {
	if s == "0" || s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func getPIDFilePath() (string, error) {
	configDir, err := config.FindConfigDir(".")
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "serve.pid"), nil
}

func writePIDFile() error {
	pidPath, err := getPIDFilePath()
	if err != nil {
		return err
	}
	return os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0644)
}

func removePIDFile() {
	pidPath, err := getPIDFilePath()
	if err != nil {
		return
	}
	os.Remove(pidPath)
}

func checkServerStatus() error {
	pidPath, err := getPIDFilePath()
	if err != nil {
		fmt.Println("Status: not running (dbtcov not initialized)")
		return nil
	}

	data, err := os.ReadFile(pidPath)
	if err != nil {
		fmt.Println("Status: not running")
		return nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		fmt.Println("Status: not running (invalid PID file)")
		return nil
	}

	// Check if process exists
	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Println("Status: not running")
		removePIDFile()
		return nil
	}

	// On Unix, FindProcess always succeeds, so we need to send signal 0 to check
	err = process.Signal(syscall.Signal(0))
	if err != nil {
		fmt.Println("Status: not running (stale PID file)")
		removePIDFile()
		return nil
	}

	fmt.Printf("Status: running (PID %d)\n", pid)
	return nil
}

func stopServer() error {
	pidPath, err := getPIDFilePath()
	if err != nil {
		return fmt.Errorf("dbtcov not initialized")
	}

	data, err := os.ReadFile(pidPath)
	if err != nil {
		fmt.Println("No server running")
		return nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		removePIDFile()
		return fmt.Errorf("invalid PID file")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		removePIDFile()
		fmt.Println("No server running")
		return nil
	}

	// Send SIGTERM for graceful shutdown
	err = process.Signal(syscall.SIGTERM)
	if err != nil {
		removePIDFile()
		fmt.Println("Server already stopped")
		return nil
	}

	fmt.Printf("Stopped server (PID %d)\n", pid)
	return nil
}
