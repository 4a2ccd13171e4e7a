package gcp

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/serviceusage/v1"

	"github.com/vantage-deploy/vantage/internal/util/idempotency"
	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// billingRequiredAPIs are services Google refuses to enable on projects
// without an active billing account. Enabling one of these with billing
// disabled produces an opaque failure minutes later, so the check happens up
// front and fails fast with remediation text.
var billingRequiredAPIs = map[string]bool{
	"aiplatform.googleapis.com":           true,
	"apigateway.googleapis.com":           true,
	"cloudfunctions.googleapis.com":       true,
	"cloudbuild.googleapis.com":           true,
	"servicecontrol.googleapis.com":       true,
	"servicemanagement.googleapis.com":    true,
}

// EnsureAPIEnabled enables a service if it is not already enabled, then waits
// a fixed settle delay for the enablement to take effect. Already-enabled
// services are a no-op without any delay.
func (c *Client) EnsureAPIEnabled(ctx context.Context, api string) error {
	name := fmt.Sprintf("projects/%s/services/%s", c.projectID, api)

	svc, err := c.serviceusage.Services.Get(name).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to look up service %s: %w", api, err)
	}
	if svc.State == "ENABLED" {
		c.log.V(1).Info("service already enabled", "api", api)
		return nil
	}

	if billingRequiredAPIs[api] {
		enabled, err := c.billingEnabled(ctx)
		if err != nil {
			return fmt.Errorf("failed to check billing for project %s: %w", c.projectID, err)
		}
		if !enabled {
			return retry.Fatal(fmt.Errorf(
				"billing is disabled on project %s but %s requires it; link a billing account at https://console.cloud.google.com/billing/linkedaccount?project=%s and run again",
				c.projectID, api, c.projectID))
		}
	}

	c.log.Info("enabling service", "api", api)
	if _, err := c.serviceusage.Services.Enable(name, &serviceusage.EnableServiceRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to enable service %s: %w", api, err)
	}

	// Enablement reports done before the service answers calls; give it a
	// fixed settle window.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.timeouts.APISettle):
	}
	return nil
}

// billingEnabled reports whether the project has an active billing account.
// A dozen services gate on this during one run, so the lookup is cached.
func (c *Client) billingEnabled(ctx context.Context) (bool, error) {
	key := idempotency.Key("billingEnabled", c.projectID)
	enabled, err := c.idem.Do(key, c.timeouts.BillingCacheTTL, func() (any, error) {
		info, err := c.billing.Projects.GetBillingInfo("projects/" + c.projectID).Context(ctx).Do()
		if err != nil {
			return false, err
		}
		return info.BillingEnabled, nil
	})
	if err != nil {
		return false, err
	}
	return enabled.(bool), nil
}
