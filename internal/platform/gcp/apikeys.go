package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/api/apikeys/v2"
)

// EnsureAPIKey returns the key string for a browser key with the given
// display name, creating it if absent. Restrictions name the services the key
// may call; an unrestricted key is only minted when the list is empty.
func (c *Client) EnsureAPIKey(ctx context.Context, displayName string, restrictions []string) (string, error) {
	parent := fmt.Sprintf("projects/%s/locations/global", c.projectID)

	existing, err := c.apikeys.Projects.Locations.Keys.List(parent).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to list API keys: %w", err)
	}
	for _, key := range existing.Keys {
		if key.DisplayName != displayName {
			continue
		}
		c.log.V(1).Info("API key already exists", "displayName", displayName)
		return c.keyString(ctx, key.Name)
	}

	req := &apikeys.V2Key{DisplayName: displayName}
	if len(restrictions) > 0 {
		targets := make([]*apikeys.V2ApiTarget, 0, len(restrictions))
		for _, service := range restrictions {
			targets = append(targets, &apikeys.V2ApiTarget{Service: service})
		}
		req.Restrictions = &apikeys.V2Restrictions{ApiTargets: targets}
	}

	c.log.Info("creating API key", "displayName", displayName)
	op, err := c.apikeys.Projects.Locations.Keys.Create(parent, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create API key %s: %w", displayName, err)
	}

	// Key creation is a long-running operation; poll until done.
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
		}
		op, err = c.apikeys.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to poll API key creation: %w", err)
		}
	}
	if op.Error != nil {
		return "", fmt.Errorf("API key creation failed: %s", op.Error.Message)
	}

	var key apikeys.V2Key
	if err := json.Unmarshal(op.Response, &key); err != nil {
		return "", fmt.Errorf("failed to decode created API key: %w", err)
	}
	if key.KeyString != "" {
		return key.KeyString, nil
	}
	return c.keyString(ctx, key.Name)
}

// keyString fetches the secret key material, which list responses omit.
func (c *Client) keyString(ctx context.Context, name string) (string, error) {
	ks, err := c.apikeys.Projects.Locations.Keys.GetKeyString(name).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to fetch key string for %s: %w", name, err)
	}
	return ks.KeyString, nil
}
