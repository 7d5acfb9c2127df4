// Package cmd implements the init command for the dbtcov CLI.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hargabyte/dbtcov/internal/config"
	"github.com/hargabyte/dbtcov/internal/history"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the .dbtcov directory and configuration",
	Long: `Initialize the .dbtcov directory in the current directory.

This writes a commented config.yaml with the default settings and
creates the history database that records coverage runs. Commands
discover the directory by walking up from wherever they are invoked,
so run init once at the project root.

Initialization is optional: 'dbtcov report' works without it, but
run history and config-file defaults need the directory to exist.

Examples:
  dbtcov init          # Initialize in current directory
  dbtcov init --force  # Rewrite config.yaml with defaults`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Rewrite the config file even if it already exists")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	configFile := filepath.Join(cwd, config.ConfigDirName, config.ConfigFileName)
	_, err = os.Stat(configFile)
	if err == nil {
		if !initForce {
			relPath, _ := filepath.Rel(cwd, configFile)
			fmt.Fprintf(cmd.OutOrStdout(), "Already initialized at %s\n", relPath)
			return nil
		}
		if err := os.Remove(configFile); err != nil {
			return fmt.Errorf("removing existing config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("checking config path: %w", err)
	}

	configPath, err := config.SaveDefault(cwd)
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// Create the history database alongside the config so the first
	// recorded run does not have to.
	store, err := history.Open(filepath.Dir(configPath))
	if err != nil {
		return fmt.Errorf("initializing history store: %w", err)
	}
	defer store.Close()

	relPath, _ := filepath.Rel(cwd, configPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized dbtcov project at %s\n", relPath)

	return nil
}
