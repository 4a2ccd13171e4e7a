package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/config/wizard"
)

// runWizard is a factory variable so tests can skip the interactive forms.
var runWizard = wizard.Run

// Init writes a new config file, interactively when stdin is a terminal.
func Init(ctx context.Context, configPath string, force bool) error {
	if configPath == "" {
		configPath = config.DefaultFile
	}
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", configPath)
	}

	var cfg *config.Deployment
	if isatty.IsTerminal(os.Stdin.Fd()) {
		var err error
		cfg, err = runWizard(ctx)
		if err != nil {
			return fmt.Errorf("wizard aborted: %w", err)
		}
	} else {
		// Non-interactive: write a scaffold the operator fills in.
		cfg = &config.Deployment{
			ProjectID: "my-project-123",
			Devices: config.Devices{
				Username: "root",
				Password: "changeme",
			},
		}
		cfg.ApplyDefaults()
	}

	if err := cfg.WriteFile(configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Review it, then run 'vantage deploy'.")
	return nil
}
