package commands

import (
	"github.com/spf13/cobra"

	"github.com/vantage-deploy/vantage/cmd/vantage/handlers"
)

// Scan returns the command that runs device discovery on its own.
func Scan() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover cameras on the local networks",
		Long: `Sweep every local subnet for cameras and print what answers.
No cloud resource is touched; use this to verify device credentials and
network reachability before a deploy.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Scan(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: vantage.yaml)")

	return cmd
}
