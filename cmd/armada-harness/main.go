/*
armada-harness drives an installed armada binary through the phases of
a functional test run: bootstrapping an environment, watching it come
up, and tearing it back down.

Usage:

	armada-harness <command> [flags]

Available Commands:

	bootstrap  Bootstrap an environment
	status     Print the current status snapshot
	wait       Block until a status condition is met
	teardown   Destroy the environment or controller
	version    Print version information
*/
package main

import (
	"os"

	"github.com/org/armada-harness/cmd/armada-harness/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
