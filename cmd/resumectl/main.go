// Package main is the entry point for the resumectl CLI.
//
// resumectl is the scheduler's power-up hook: given a host range of
// powered-down compute nodes, it provisions the backing cloud instances in
// correctly batched, correctly placed bulk requests and reconciles
// failures back into scheduler state.
//
// Usage:
//
//	resumectl <nodelist>
package main

import (
	"fmt"
	"os"

	"github.com/hpcops/resumectl/cmd/resumectl/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
