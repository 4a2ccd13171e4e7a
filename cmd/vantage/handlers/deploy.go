package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/state"
	"github.com/vantage-deploy/vantage/internal/ui"
)

// Deploy runs the full pipeline for a fresh deployment.
func Deploy(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, locker, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	d := state.NewDeployment(cfg)
	if err := locker.Acquire(ctx, d.ID); err != nil {
		return err
	}
	defer locker.Release(d.ID)

	fmt.Printf("Starting deployment %s into project %s\n", d.ID, cfg.ProjectID)

	pc, err := buildContext(ctx, cfg, d, store)
	if err != nil {
		return err
	}
	return runPipeline(pc)
}

// runPipeline executes the fixed step list and prints the run summary. On
// failure the deployment id is repeated so the operator can resume.
//
// The first interrupt requests a pause: the current step runs to completion
// and the pipeline stops at the next step boundary so nothing is left
// half-applied. A second interrupt terminates the process.
func runPipeline(pc *provisioning.Context) error {
	p, err := provisioning.NewPipeline(pipelineSteps())
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		<-sigs
		signal.Stop(sigs)
		fmt.Println("\nPause requested; finishing the current step...")
		p.RequestPause()
	}()

	runErr := p.Run(pc)
	ui.PrintSummary(os.Stdout, pc.Deployment)

	if errors.Is(runErr, provisioning.ErrPaused) {
		fmt.Printf("\nPaused. Continue with:\n  vantage resume %s\n", pc.Deployment.ID)
		return nil
	}
	if runErr != nil {
		fmt.Printf("\nFix the failure and continue with:\n  vantage resume %s\n", pc.Deployment.ID)
	}
	return runErr
}
