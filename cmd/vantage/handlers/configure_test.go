package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/state"
)

// saveDeployment persists a deployment record with the given completed steps.
func saveDeployment(t *testing.T, cfg *config.Deployment, completed map[string]map[string]string) *state.Deployment {
	t.Helper()
	d := state.NewDeployment(cfg)
	for step, resources := range completed {
		require.NoError(t, d.MarkInProgress(step))
		require.NoError(t, d.MarkCompleted(step, resources))
	}
	fileStore, err := state.NewFileStore(cfg.State.Dir)
	require.NoError(t, err)
	require.NoError(t, fileStore.Save(context.Background(), d))
	return d
}

func TestConfigure_RequiresGateway(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	d := saveDeployment(t, cfg, nil)

	err := Configure(context.Background(), "", d.ID, "192.168.1.45", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gateway yet")
	assert.Contains(t, err.Error(), "vantage resume "+d.ID)
}

func TestConfigure_PushesDeploymentOutputs(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	cfg.CustomerID = "cust-42"
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	d := saveDeployment(t, cfg, map[string]map[string]string{
		"api-gateway": {"gatewayURL": "https://acme-gateway.example.dev"},
		"api-keys":    {"apiKey": "AIza-test-key"},
		"storage":     {"bucket": "acme-vision-prod-analytics"},
	})

	devs := &fakeDevices{}
	injectDeviceFakes(devs, &fakeDiscoverer{})

	var err error
	output := captureOutput(func() {
		err = Configure(context.Background(), "", d.ID, "192.168.1.45", 0)
	})
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration accepted")

	require.Len(t, devs.configured, 1)
	payload := devs.configured[0]
	assert.Equal(t, "https://acme-gateway.example.dev", payload.GatewayURL)
	assert.Equal(t, "AIza-test-key", payload.APIKey)
	assert.Equal(t, "acme-vision-prod", payload.ProjectID)
	assert.Equal(t, "cust-42", payload.CustomerID)
	assert.Equal(t, "acme-vision-prod-analytics", payload.StorageName)

	require.Len(t, devs.cameras, 1)
	cam := devs.cameras[0]
	assert.Equal(t, "192.168.1.45", cam.Address)
	assert.Equal(t, cfg.Devices.Port, cam.Port, "port defaults from config")
	assert.Equal(t, "root", cam.Username)
}

func TestConfigure_ExplicitPortWins(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	d := saveDeployment(t, cfg, map[string]map[string]string{
		"api-gateway": {"gatewayURL": "https://gw.example.dev"},
		"api-keys":    {"apiKey": "AIza-test-key"},
	})

	devs := &fakeDevices{}
	injectDeviceFakes(devs, &fakeDiscoverer{})

	_ = captureOutput(func() {
		require.NoError(t, Configure(context.Background(), "", d.ID, "192.168.1.45", 8443))
	})

	require.Len(t, devs.cameras, 1)
	assert.Equal(t, 8443, devs.cameras[0].Port)
}

func TestConfigure_LicenseFailureIsAdvisory(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	cfg.LicenseKey = "LIC-1234"
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	d := saveDeployment(t, cfg, map[string]map[string]string{
		"api-gateway": {"gatewayURL": "https://gw.example.dev"},
		"api-keys":    {"apiKey": "AIza-test-key"},
	})

	devs := &fakeDevices{licenseErr: errors.New("license server unreachable")}
	injectDeviceFakes(devs, &fakeDiscoverer{})

	var err error
	output := captureOutput(func() {
		err = Configure(context.Background(), "", d.ID, "192.168.1.45", 0)
	})
	require.NoError(t, err, "a failed license must not fail the push")
	assert.Contains(t, output, "License activation failed")
	assert.Len(t, devs.configured, 1)
}

func TestConfigure_DeviceErrorPropagates(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	d := saveDeployment(t, cfg, map[string]map[string]string{
		"api-gateway": {"gatewayURL": "https://gw.example.dev"},
		"api-keys":    {"apiKey": "AIza-test-key"},
	})

	devs := &fakeDevices{configErr: errors.New("401 unauthorized")}
	injectDeviceFakes(devs, &fakeDiscoverer{})

	var err error
	_ = captureOutput(func() {
		err = Configure(context.Background(), "", d.ID, "192.168.1.45", 0)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
