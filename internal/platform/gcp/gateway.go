package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/apigateway/v1"
)

// EnsureGateway provisions the API Gateway triple (api, api config, gateway)
// and waits for the gateway to reach ACTIVE. Returns the default hostname the
// devices will call.
//
// Gateways take minutes to become routable after creation, so the ACTIVE wait
// is a propagation barrier with a long budget.
func (c *Client) EnsureGateway(ctx context.Context, apiID, gatewayID string, openAPISpec []byte) (string, error) {
	if err := c.ensureGatewayAPI(ctx, apiID); err != nil {
		return "", err
	}

	configID := apiID + "-config"
	if err := c.ensureGatewayConfig(ctx, apiID, configID, openAPISpec); err != nil {
		return "", err
	}

	parent := fmt.Sprintf("projects/%s/locations/%s", c.projectID, c.region)
	gwName := parent + "/gateways/" + gatewayID
	apiConfig := fmt.Sprintf("projects/%s/locations/global/apis/%s/configs/%s", c.projectID, apiID, configID)

	_, err := c.apigateway.Projects.Locations.Gateways.Get(gwName).Context(ctx).Do()
	switch classifyProbe(err) {
	case ProbeFound:
		c.log.V(1).Info("gateway already exists", "gateway", gatewayID)
	case ProbeFatal:
		return "", fmt.Errorf("failed to look up gateway %s: %w", gatewayID, err)
	case ProbeNotYet:
		c.log.Info("creating gateway", "gateway", gatewayID)
		_, err = c.apigateway.Projects.Locations.Gateways.Create(parent, &apigateway.ApigatewayGateway{
			ApiConfig:   apiConfig,
			DisplayName: gatewayID,
		}).GatewayId(gatewayID).Context(ctx).Do()
		if err != nil && !IsConflict(err) {
			return "", fmt.Errorf("failed to create gateway %s: %w", gatewayID, err)
		}
	}

	return c.waitForGatewayActive(ctx, gwName)
}

func (c *Client) ensureGatewayAPI(ctx context.Context, apiID string) error {
	parent := fmt.Sprintf("projects/%s/locations/global", c.projectID)
	name := parent + "/apis/" + apiID

	_, err := c.apigateway.Projects.Locations.Apis.Get(name).Context(ctx).Do()
	switch classifyProbe(err) {
	case ProbeFound:
		return nil
	case ProbeFatal:
		return fmt.Errorf("failed to look up api %s: %w", apiID, err)
	}

	c.log.Info("creating managed api", "api", apiID)
	_, err = c.apigateway.Projects.Locations.Apis.Create(parent, &apigateway.ApigatewayApi{
		DisplayName: apiID,
	}).ApiId(apiID).Context(ctx).Do()
	if err != nil && !IsConflict(err) {
		return fmt.Errorf("failed to create api %s: %w", apiID, err)
	}
	return nil
}

func (c *Client) ensureGatewayConfig(ctx context.Context, apiID, configID string, openAPISpec []byte) error {
	parent := fmt.Sprintf("projects/%s/locations/global/apis/%s", c.projectID, apiID)
	name := parent + "/configs/" + configID

	_, err := c.apigateway.Projects.Locations.Apis.Configs.Get(name).Context(ctx).Do()
	switch classifyProbe(err) {
	case ProbeFound:
		return nil
	case ProbeFatal:
		return fmt.Errorf("failed to look up api config %s: %w", configID, err)
	}

	c.log.Info("creating api config", "config", configID)
	_, err = c.apigateway.Projects.Locations.Apis.Configs.Create(parent, &apigateway.ApigatewayApiConfig{
		DisplayName: configID,
		OpenapiDocuments: []*apigateway.ApigatewayApiConfigOpenApiDocument{
			{
				Document: &apigateway.ApigatewayApiConfigFile{
					Path:     "openapi.yaml",
					Contents: base64.StdEncoding.EncodeToString(openAPISpec),
				},
			},
		},
	}).ApiConfigId(configID).Context(ctx).Do()
	if err != nil && !IsConflict(err) {
		return fmt.Errorf("failed to create api config %s: %w", configID, err)
	}
	return nil
}

func (c *Client) waitForGatewayActive(ctx context.Context, name string) (string, error) {
	deadline := time.Now().Add(c.timeouts.GatewayActive)
	interval := 15 * time.Second

	for {
		gw, err := c.apigateway.Projects.Locations.Gateways.Get(name).Context(ctx).Do()
		switch classifyProbe(err) {
		case ProbeFound:
			switch gw.State {
			case "ACTIVE":
				return "https://" + gw.DefaultHostname, nil
			case "FAILED":
				return "", fmt.Errorf("gateway %s entered FAILED state", name)
			}
		case ProbeFatal:
			return "", fmt.Errorf("failed while waiting for gateway %s: %w", name, err)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out after %v waiting for gateway %s to become ACTIVE", c.timeouts.GatewayActive, name)
		}

		c.log.V(1).Info("gateway not active yet", "gateway", name)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
