// Package handlers implements the business logic for CLI commands.
//
// Handlers are framework-agnostic: commands parse flags and delegate here,
// and the factory variables below are swapped out in tests.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/platform/axis"
	"github.com/vantage-deploy/vantage/internal/platform/gcp"
	"github.com/vantage-deploy/vantage/internal/platform/terraform"
	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/provisioning/cloud"
	"github.com/vantage-deploy/vantage/internal/provisioning/devices"
	"github.com/vantage-deploy/vantage/internal/scan"
	"github.com/vantage-deploy/vantage/internal/state"
	"github.com/vantage-deploy/vantage/internal/ui"
)

// Factory function variables - replaced in tests for dependency injection.
var (
	loadConfigFile = config.LoadFile

	newCloudClient = func(ctx context.Context, cfg *config.Deployment, t *config.Timeouts, log logr.Logger) (gcp.Manager, error) {
		return gcp.NewClient(ctx, cfg.ProjectID, cfg.Region, t, log)
	}

	newDeviceClient = func(t *config.Timeouts, log logr.Logger) provisioning.DeviceManager {
		return axis.NewClient(t, log)
	}

	newScanner = func(prober scan.Prober, cfg *config.Devices, t *config.Timeouts, log logr.Logger) provisioning.Discoverer {
		return scan.New(prober, cfg, t, log)
	}

	newTerraformRunner = func(cfg *config.Terraform, log logr.Logger) (provisioning.IaCRunner, error) {
		return terraform.New(cfg.Binary, cfg.WorkDir, cfg.ExtraArgs, log)
	}

	newObserver = func(log logr.Logger) provisioning.Observer {
		return provisioning.MultiObserver(ui.NewConsoleObserver(), provisioning.NewLogObserver(log))
	}
)

// newLogger builds the structured log sink. Verbosity comes from
// VANTAGE_VERBOSITY; the console observer handles the human-facing stream,
// so this one goes to stderr.
func newLogger() logr.Logger {
	verbosity := 0
	if os.Getenv("VANTAGE_VERBOSITY") != "" {
		fmt.Sscanf(os.Getenv("VANTAGE_VERBOSITY"), "%d", &verbosity)
	}
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(os.Stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: verbosity})
}

// loadConfig resolves the config path and loads the deployment config.
func loadConfig(configPath string) (*config.Deployment, error) {
	if configPath == "" {
		configPath = config.DefaultFile
	}
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w\nRun 'vantage init' to create one", configPath, err)
	}
	return cfg, nil
}

// newStore builds the checkpoint store: a local file store, mirrored to S3
// when the config names a remote backend. The returned FileStore holds the
// per-deployment lock.
func newStore(ctx context.Context, cfg *config.Deployment) (state.Store, *state.FileStore, error) {
	fileStore, err := state.NewFileStore(cfg.State.Dir)
	if err != nil {
		return nil, nil, err
	}
	if cfg.State.S3 == nil {
		return fileStore, fileStore, nil
	}

	s3, err := state.NewS3Store(ctx, state.S3Options{
		Endpoint:  cfg.State.S3.Endpoint,
		Region:    cfg.State.S3.Region,
		Bucket:    cfg.State.S3.Bucket,
		Prefix:    cfg.State.S3.Prefix,
		AccessKey: cfg.State.S3.AccessKey,
		SecretKey: cfg.State.S3.SecretKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up S3 state mirror: %w", err)
	}
	return &state.MirrorStore{Primary: fileStore, Mirror: s3}, fileStore, nil
}

// buildContext wires every client into a provisioning context.
func buildContext(ctx context.Context, cfg *config.Deployment, d *state.Deployment, store state.Store) (*provisioning.Context, error) {
	log := newLogger()
	timeouts := config.LoadTimeouts()

	cloudClient, err := newCloudClient(ctx, cfg, timeouts, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build cloud client: %w", err)
	}
	deviceClient := newDeviceClient(timeouts, log)
	prober, ok := deviceClient.(scan.Prober)
	if !ok {
		return nil, fmt.Errorf("device client cannot probe")
	}
	tf, err := newTerraformRunner(&cfg.Terraform, log)
	if err != nil {
		return nil, err
	}

	pc := provisioning.NewContext(ctx, cfg, d, store)
	pc.Cloud = cloudClient
	pc.Devices = deviceClient
	pc.Scanner = newScanner(prober, &cfg.Devices, timeouts, log)
	pc.Terraform = tf
	pc.Observer = newObserver(log)
	pc.Timeouts = timeouts
	pc.Log = log
	return pc, nil
}

// pipelineSteps returns the full fixed step list.
func pipelineSteps() []provisioning.Step {
	return append(cloud.Steps(), devices.Steps()...)
}
