// Package commands defines the CLI command structure and flag bindings.
//
// Commands handle argument parsing and validation; execution is delegated to
// the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the vantage CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vantage",
		Short: "Provision the cloud backend and configure the camera fleet",
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Deploy())
	cmd.AddCommand(Resume())
	cmd.AddCommand(Scan())
	cmd.AddCommand(Configure())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
