package commands

import (
	"github.com/spf13/cobra"

	"github.com/vantage-deploy/vantage/cmd/vantage/handlers"
)

// Resume returns the command that continues a checkpointed deployment.
func Resume() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resume <deployment-id>",
		Short: "Continue a deployment from its last checkpoint",
		Long: `Continue a previously started deployment. Steps that already
completed are skipped; the pipeline picks up at the first incomplete step.

The deployment id is printed when a deploy starts and again if it fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Resume(cmd.Context(), configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: vantage.yaml)")

	return cmd
}
