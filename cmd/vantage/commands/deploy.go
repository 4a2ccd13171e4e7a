package commands

import (
	"github.com/spf13/cobra"

	"github.com/vantage-deploy/vantage/cmd/vantage/handlers"
)

// Deploy returns the command that runs the full provisioning pipeline.
func Deploy() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision the cloud backend and configure all cameras",
		Long: `Run the full deployment pipeline: enable APIs, create service
accounts and IAM bindings, provision storage, keys, the identity provider and
the API gateway, then discover and configure every camera on the local
network.

Progress is checkpointed after every step. If a step fails, fix the cause
and continue with 'vantage resume <deployment-id>'; completed steps are
never repeated.

Examples:
  # Deploy using vantage.yaml in the current directory
  vantage deploy

  # Deploy using a specific config file
  vantage deploy -c production.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: vantage.yaml)")

	return cmd
}
