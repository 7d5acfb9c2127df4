// Package main is the entry point for the dbtcov CLI tool.
package main

import (
	"github.com/hargabyte/dbtcov/internal/cmd"
)

func main() {
	cmd.Execute()
}
