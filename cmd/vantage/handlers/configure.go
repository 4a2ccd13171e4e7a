package handlers

import (
	"context"
	"fmt"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/platform/axis"
)

// Configure pushes the deployment document to a single camera by address,
// using the outputs of an already-completed deployment. The deployment
// record is read-only here; ad-hoc pushes are not checkpointed.
func Configure(ctx context.Context, configPath, deploymentID, address string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, _, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	d, err := store.Load(ctx, deploymentID)
	if err != nil {
		return fmt.Errorf("failed to load deployment %s: %w", deploymentID, err)
	}
	if err := d.Validate(); err != nil {
		return err
	}

	gatewayURL, ok := d.Resource("gatewayURL")
	if !ok {
		return fmt.Errorf("deployment %s has no gateway yet; run 'vantage resume %s' first", d.ID, d.ID)
	}
	apiKey, ok := d.Resource("apiKey")
	if !ok {
		return fmt.Errorf("deployment %s has no API key recorded", d.ID)
	}
	bucket, _ := d.Resource("bucket")

	log := newLogger()
	timeouts := config.LoadTimeouts()
	deviceClient := newDeviceClient(timeouts, log)

	if port == 0 {
		port = cfg.Devices.Port
	}
	cam := &axis.Camera{
		Address:  address,
		Port:     port,
		Username: cfg.Devices.Username,
		Password: cfg.Devices.Password,
	}

	payload := axis.ConfigPayload{
		GatewayURL:  gatewayURL,
		APIKey:      apiKey,
		ProjectID:   d.Config.ProjectID,
		Region:      d.Config.Region,
		CustomerID:  d.Config.CustomerID,
		LicenseKey:  d.Config.LicenseKey,
		WebAppID:    d.Config.WebAppID,
		StorageName: bucket,
	}

	fmt.Printf("Pushing configuration to %s...\n", address)
	if err := deviceClient.Configure(ctx, cam, payload); err != nil {
		return err
	}
	fmt.Println("Configuration accepted.")

	if d.Config.LicenseKey == "" {
		return nil
	}
	status, err := deviceClient.ActivateLicense(ctx, cam, d.Config.LicenseKey)
	if err != nil {
		// Configuration stands; the license can be retried any time.
		fmt.Printf("License activation failed (configuration is unaffected): %v\n", err)
		return nil
	}
	fmt.Printf("License %s, expires %s\n", status.Status, status.Expires)
	return nil
}
