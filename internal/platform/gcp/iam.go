package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iam/v1"

	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// EnsureRoleBinding grants member the role on the project policy: fetch the
// current policy, no-op when the member is already bound, otherwise append
// (creating the binding when absent) and write back.
//
// The whole read-modify-write is retried with backoff because two failure
// modes are expected and transient: "member not found" immediately after
// service account creation, and 409 etag conflicts when the policy changed
// between read and write. Binding the same member and role twice leaves the
// member in the policy exactly once.
func (c *Client) EnsureRoleBinding(ctx context.Context, member, role string) error {
	op := func() error {
		policy, err := c.crm.Projects.GetIamPolicy(c.projectID, &cloudresourcemanager.GetIamPolicyRequest{}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to read project policy: %w", err)
		}

		bindings, changed := appendProjectMember(policy.Bindings, role, member)
		if !changed {
			c.log.V(1).Info("role already bound", "role", role, "member", member)
			return nil
		}
		policy.Bindings = bindings

		_, err = c.crm.Projects.SetIamPolicy(c.projectID, &cloudresourcemanager.SetIamPolicyRequest{
			Policy: policy,
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", role, member, err)
		}
		return nil
	}

	return retry.Do(ctx, op,
		retry.WithMaxAttempts(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay),
		retry.WithJitter())
}

// appendProjectMember adds member to the binding for role, creating the
// binding if needed. Reports whether the policy changed.
func appendProjectMember(bindings []*cloudresourcemanager.Binding, role, member string) ([]*cloudresourcemanager.Binding, bool) {
	for _, b := range bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return bindings, false
			}
		}
		b.Members = append(b.Members, member)
		return bindings, true
	}
	return append(bindings, &cloudresourcemanager.Binding{
		Role:    role,
		Members: []string{member},
	}), true
}

// appendMember is appendProjectMember for service-account-scoped policies.
func appendMember(bindings []*iam.Binding, role, member string) ([]*iam.Binding, bool) {
	for _, b := range bindings {
		if b.Role != role {
			continue
		}
		for _, m := range b.Members {
			if m == member {
				return bindings, false
			}
		}
		b.Members = append(b.Members, member)
		return bindings, true
	}
	return append(bindings, &iam.Binding{
		Role:    role,
		Members: []string{member},
	}), true
}
