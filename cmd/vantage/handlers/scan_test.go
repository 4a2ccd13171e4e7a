package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/platform/axis"
)

func TestScan_PrintsDiscoveredCameras(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }

	disc := &fakeDiscoverer{cameras: []*axis.Camera{
		{Address: "192.168.1.45", Model: "Q1656", Serial: "ACCC8E000001", AuthRequired: true},
		{Address: "192.168.1.46", Model: "P3265", Serial: "ACCC8E000002"},
	}}
	injectDeviceFakes(&fakeDevices{}, disc)

	var err error
	output := captureOutput(func() {
		err = Scan(context.Background(), "")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "ADDRESS")
	assert.Contains(t, output, "192.168.1.45")
	assert.Contains(t, output, "Q1656")
	assert.Contains(t, output, "required")
	assert.Contains(t, output, "192.168.1.46")
	assert.Contains(t, output, "open")
}

func TestScan_NoCameras(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	injectDeviceFakes(&fakeDevices{}, &fakeDiscoverer{})

	var err error
	output := captureOutput(func() {
		err = Scan(context.Background(), "")
	})
	require.NoError(t, err)
	assert.Contains(t, output, "No cameras found")
}

func TestScan_SweepErrorPropagates(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	injectDeviceFakes(&fakeDevices{}, &fakeDiscoverer{err: errors.New("no networks eligible for scanning")})

	var err error
	_ = captureOutput(func() {
		err = Scan(context.Background(), "")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no networks")
}
