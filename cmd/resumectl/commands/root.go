// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package, which are framework-agnostic and independently testable.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/hpcops/resumectl/cmd/resumectl/handlers"
)

// Root returns the root command for the resumectl CLI.
func Root() *cobra.Command {
	var opts handlers.Options

	cmd := &cobra.Command{
		Use:   "resumectl <nodelist>",
		Short: "Provision cloud instances for scheduler nodes being resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.NodeList = args[0]
			cmd.SilenceUsage = true
			return handlers.Resume(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "/etc/resumectl/config.yaml", "cluster configuration file")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")

	return cmd
}
