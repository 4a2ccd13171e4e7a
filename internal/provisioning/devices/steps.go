// Package devices implements the pipeline steps that discover, configure,
// and license the camera fleet.
package devices

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vantage-deploy/vantage/internal/platform/axis"
	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/scan"
	"github.com/vantage-deploy/vantage/internal/util/batch"
	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// Steps returns the device half of the pipeline in execution order.
func Steps() []provisioning.Step {
	return []provisioning.Step{
		Discover{},
		Configure{},
		ActivateLicenses{},
	}
}

// Discover sweeps the local networks for cameras.
type Discover struct{}

func (Discover) Name() string    { return "discover-devices" }
func (Discover) Needs() []string { return []string{"preflight"} }

func (s Discover) Run(pc *provisioning.Context) (map[string]string, error) {
	cameras, err := discover(pc, s.Name())
	if err != nil {
		return nil, err
	}
	if len(cameras) == 0 {
		return nil, retry.Fatal(fmt.Errorf(
			"no cameras found; check that devices are on the local network or list them under devices.manual"))
	}

	addresses := make([]string, len(cameras))
	for i, cam := range cameras {
		addresses[i] = cam.Address
		pc.Observer.Event(provisioning.Event{
			Type: provisioning.EventResourceExists, Step: s.Name(), Resource: cam.Address,
			Message: "camera discovered",
			Fields:  map[string]string{"model": cam.Model, "serial": cam.Serial},
		})
	}
	return map[string]string{
		"cameraCount":     strconv.Itoa(len(cameras)),
		"cameraAddresses": strings.Join(addresses, ","),
	}, nil
}

func discover(pc *provisioning.Context, stepName string) ([]*axis.Camera, error) {
	cameras, err := pc.Scanner.Run(pc, func(p scan.Progress) {
		pc.Observer.Progress(stepName, p.Done, p.Total)
	})
	if err != nil {
		return nil, fmt.Errorf("device sweep failed: %w", err)
	}
	pc.State.Cameras = cameras
	return cameras, nil
}

// Configure pushes the deployment document to every discovered camera.
type Configure struct{}

func (Configure) Name() string { return "configure-devices" }
func (Configure) Needs() []string {
	return []string{"discover-devices", "api-keys", "api-gateway"}
}

func (s Configure) Run(pc *provisioning.Context) (map[string]string, error) {
	// Cameras are never persisted, so a resumed run that skipped discovery
	// has to sweep again before it can push configuration.
	if len(pc.State.Cameras) == 0 {
		pc.Log.Info("no cameras in memory, re-running discovery")
		if _, err := discover(pc, s.Name()); err != nil {
			return nil, err
		}
	}
	if pc.State.GatewayURL == "" || pc.State.APIKey == "" {
		return nil, fmt.Errorf("gateway URL or API key missing from state; earlier steps did not record them")
	}

	payload := axis.ConfigPayload{
		GatewayURL:  pc.State.GatewayURL,
		APIKey:      pc.State.APIKey,
		ProjectID:   pc.Config.ProjectID,
		Region:      pc.Config.Region,
		CustomerID:  pc.Config.CustomerID,
		LicenseKey:  pc.Config.LicenseKey,
		WebAppID:    pc.Config.WebAppID,
		StorageName: pc.State.Bucket,
	}

	results := batch.Run(pc, pc.State.Cameras,
		func(ctx context.Context, cam *axis.Camera) (struct{}, error) {
			return struct{}{}, pc.Devices.Configure(ctx, cam, payload)
		},
		batch.Options{
			Concurrency: 3,
			Retry: []retry.Option{
				retry.WithMaxAttempts(pc.Timeouts.RetryMaxAttempts),
				retry.WithInitialDelay(pc.Timeouts.RetryInitialDelay),
				retry.WithOnRetry(func(int, time.Duration, error) {
					provisioning.ObserveRetry(s.Name())
				}),
			},
			OnProgress: func(done, total int) {
				pc.Observer.Progress(s.Name(), done, total)
			},
		})

	configured := 0
	var failures []string
	for _, res := range results {
		if res.Err != nil {
			provisioning.ObserveDeviceConfigured("failure")
			failures = append(failures, fmt.Sprintf("%s: %v", res.Item.Address, res.Err))
			continue
		}
		provisioning.ObserveDeviceConfigured("success")
		configured++
	}

	if configured == 0 {
		return nil, fmt.Errorf("no camera accepted configuration: %s", strings.Join(failures, "; "))
	}
	for _, f := range failures {
		pc.Log.Info("camera configuration failed", "detail", f)
	}
	return map[string]string{
		"configuredCount": strconv.Itoa(configured),
		"failedCount":     strconv.Itoa(len(failures)),
	}, nil
}

// ActivateLicenses activates the analytics license on every configured
// camera. Activation failures are advisory: the configuration already
// succeeded and a license can be retried from the vendor portal, so this
// step completes with warnings rather than halting the pipeline.
type ActivateLicenses struct{}

func (ActivateLicenses) Name() string    { return "activate-licenses" }
func (ActivateLicenses) Needs() []string { return []string{"configure-devices"} }

func (s ActivateLicenses) Run(pc *provisioning.Context) (map[string]string, error) {
	if pc.Config.LicenseKey == "" {
		pc.Log.Info("no license key configured, skipping activation")
		return map[string]string{"activatedCount": "0"}, nil
	}

	var targets []*axis.Camera
	for _, cam := range pc.State.Cameras {
		if cam.Configured {
			targets = append(targets, cam)
		}
	}

	results := batch.Run(pc, targets,
		func(ctx context.Context, cam *axis.Camera) (*axis.LicenseStatus, error) {
			return pc.Devices.ActivateLicense(ctx, cam, pc.Config.LicenseKey)
		},
		batch.Options{
			Concurrency: 3,
			OnProgress: func(done, total int) {
				pc.Observer.Progress(s.Name(), done, total)
			},
		})

	activated := 0
	for _, res := range results {
		if res.Err != nil {
			pc.Log.Info("license activation failed", "camera", res.Item.Address, "error", res.Err.Error())
			continue
		}
		activated++
		pc.Observer.Event(provisioning.Event{
			Type: provisioning.EventResourceCreated, Step: s.Name(), Resource: res.Item.Address,
			Message: "license activated",
			Fields:  map[string]string{"status": res.Out.Status, "expires": res.Out.Expires},
		})
	}
	return map[string]string{"activatedCount": strconv.Itoa(activated)}, nil
}
