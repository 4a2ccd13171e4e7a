package gcp

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/iam/v1"
)

const saPropagationAttempts = 12

// EnsureServiceAccount looks up the account by email, creates it if absent,
// and then polls the lookup until it succeeds. The poll is a propagation
// barrier: IAM acknowledges creation before the account is visible to reads,
// and later policy bindings fail until it is.
//
// Returns the service account email. Calling this twice with the same id
// performs at most one create.
func (c *Client) EnsureServiceAccount(ctx context.Context, accountID, displayName string) (string, error) {
	email := fmt.Sprintf("%s@%s.iam.gserviceaccount.com", accountID, c.projectID)
	resource := "projects/-/serviceAccounts/" + email

	_, err := c.iam.Projects.ServiceAccounts.Get(resource).Context(ctx).Do()
	switch classifyProbe(err) {
	case ProbeFound:
		c.log.V(1).Info("service account already exists", "email", email)
		return email, nil
	case ProbeFatal:
		return "", fmt.Errorf("failed to look up service account %s: %w", email, err)
	}

	c.log.Info("creating service account", "email", email)
	_, err = c.iam.Projects.ServiceAccounts.Create("projects/"+c.projectID, &iam.CreateServiceAccountRequest{
		AccountId: accountID,
		ServiceAccount: &iam.ServiceAccount{
			DisplayName: displayName,
		},
	}).Context(ctx).Do()
	if err != nil && !IsConflict(err) {
		// 409 means a concurrent or crashed prior run created it already.
		return "", fmt.Errorf("failed to create service account %s: %w", email, err)
	}

	if err := c.waitForServiceAccount(ctx, resource); err != nil {
		return "", err
	}
	return email, nil
}

// waitForServiceAccount polls until the account is readable, with a bounded
// number of fixed-interval attempts.
func (c *Client) waitForServiceAccount(ctx context.Context, resource string) error {
	for attempt := 1; attempt <= saPropagationAttempts; attempt++ {
		_, err := c.iam.Projects.ServiceAccounts.Get(resource).Context(ctx).Do()
		switch classifyProbe(err) {
		case ProbeFound:
			return nil
		case ProbeFatal:
			return fmt.Errorf("failed while waiting for %s: %w", resource, err)
		}

		if attempt < saPropagationAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.timeouts.SAPropagation):
			}
		}
	}
	return fmt.Errorf("timed out waiting for %s to become visible after %d attempts", resource, saPropagationAttempts)
}

// EnsureServiceAccountUser grants member the serviceAccountUser role on one
// service account's own policy, using the same check-append-write pattern as
// project bindings.
func (c *Client) EnsureServiceAccountUser(ctx context.Context, serviceAccountEmail, member string) error {
	const role = "roles/iam.serviceAccountUser"
	resource := fmt.Sprintf("projects/%s/serviceAccounts/%s", c.projectID, serviceAccountEmail)

	policy, err := c.iam.Projects.ServiceAccounts.GetIamPolicy(resource).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read policy of %s: %w", serviceAccountEmail, err)
	}

	bindings, changed := appendMember(policy.Bindings, role, member)
	if !changed {
		c.log.V(1).Info("service account user already granted", "sa", serviceAccountEmail, "member", member)
		return nil
	}
	policy.Bindings = bindings

	_, err = c.iam.Projects.ServiceAccounts.SetIamPolicy(resource, &iam.SetIamPolicyRequest{
		Policy: policy,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to grant %s on %s to %s: %w", role, serviceAccountEmail, member, err)
	}
	return nil
}

// WaitForComputeDefaultIdentity polls for the platform-created default
// compute service account with a long budget. Serverless deploys cannot be
// granted permissions until this identity exists, and Google creates it
// asynchronously minutes after the compute API is first enabled.
func (c *Client) WaitForComputeDefaultIdentity(ctx context.Context) (string, error) {
	project, err := c.crm.Projects.Get(c.projectID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to resolve project number for %s: %w", c.projectID, err)
	}

	email := fmt.Sprintf("%d-compute@developer.gserviceaccount.com", project.ProjectNumber)
	resource := "projects/-/serviceAccounts/" + email

	deadline := time.Now().Add(c.timeouts.ComputeIdentity)
	interval := 10 * time.Second

	for {
		_, err := c.iam.Projects.ServiceAccounts.Get(resource).Context(ctx).Do()
		switch classifyProbe(err) {
		case ProbeFound:
			return email, nil
		case ProbeFatal:
			return "", fmt.Errorf("failed while waiting for compute identity %s: %w", email, err)
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out after %v waiting for compute identity %s", c.timeouts.ComputeIdentity, email)
		}

		c.log.V(1).Info("compute identity not visible yet", "email", email)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}
}
