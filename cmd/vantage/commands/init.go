package commands

import (
	"github.com/spf13/cobra"

	"github.com/vantage-deploy/vantage/cmd/vantage/handlers"
)

// Init returns the command that creates a configuration file.
func Init() *cobra.Command {
	var (
		configPath string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create vantage.yaml. On a terminal this walks through an
interactive wizard; otherwise it writes a scaffold to edit by hand.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), configPath, force)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Where to write the file (default: vantage.yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
