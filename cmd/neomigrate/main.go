// Package main implements the neomigrate CLI.
// It collects connection and migration options, builds a validated
// configuration, verifies a Bolt connection to the target server, and
// dispatches to the selected subcommand.
package main

import (
	"context"
	"os"
)

func main() {
	root := buildCLI(newApp())
	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
