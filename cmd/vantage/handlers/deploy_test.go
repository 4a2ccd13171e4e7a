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

func TestDeploy_ConfigError(t *testing.T) {
	saveAndRestoreFactories(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) {
		return nil, errors.New("yaml: line 3: mapping values are not allowed")
	}

	err := Deploy(context.Background(), "broken.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestDeploy_CloudClientError(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	failCloudClient(errors.New("credentials not found"))

	var err error
	_ = captureOutput(func() {
		err = Deploy(context.Background(), "")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build cloud client")
}

func TestDeploy_CheckpointsNewDeployment(t *testing.T) {
	saveAndRestoreFactories(t)
	cfg := testConfig(t)
	loadConfigFile = func(_ string) (*config.Deployment, error) { return cfg, nil }
	failCloudClient(errors.New("stop before any remote call"))

	_ = captureOutput(func() {
		_ = Deploy(context.Background(), "")
	})

	// A fresh deployment id is minted before the pipeline runs; the store
	// must not contain one yet since no step was reached.
	fileStore, err := state.NewFileStore(cfg.State.Dir)
	require.NoError(t, err)
	ids, err := fileStore.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "no checkpoint should exist when wiring fails before the first step")
}
