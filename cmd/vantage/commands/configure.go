package commands

import (
	"github.com/spf13/cobra"

	"github.com/vantage-deploy/vantage/cmd/vantage/handlers"
)

// Configure returns the command that pushes configuration to one camera.
func Configure() *cobra.Command {
	var (
		configPath   string
		deploymentID string
		port         int
	)

	cmd := &cobra.Command{
		Use:   "configure <address>",
		Short: "Push deployment configuration to a single camera",
		Long: `Push the backend connection document to one camera by address,
reusing the gateway URL and API key of an existing deployment. Useful for
cameras added after the initial rollout.

Example:
  vantage configure 192.168.1.45 --deployment 2f6b0c4a-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Configure(cmd.Context(), configPath, deploymentID, args[0], port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: vantage.yaml)")
	cmd.Flags().StringVarP(&deploymentID, "deployment", "d", "", "Deployment id whose outputs to push (required)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Device HTTPS port (default: from config)")
	_ = cmd.MarkFlagRequired("deployment")

	return cmd
}
