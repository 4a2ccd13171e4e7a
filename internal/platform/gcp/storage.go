package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/storage/v1"
)

// EnsureBucket creates the bucket if it does not exist. Uniform bucket-level
// access is forced so object ACLs never diverge from the project policy.
func (c *Client) EnsureBucket(ctx context.Context, name string) error {
	_, err := c.storage.Buckets.Get(name).Context(ctx).Do()
	switch classifyProbe(err) {
	case ProbeFound:
		c.log.V(1).Info("bucket already exists", "bucket", name)
		return nil
	case ProbeFatal:
		return fmt.Errorf("failed to look up bucket %s: %w", name, err)
	}

	c.log.Info("creating bucket", "bucket", name)
	_, err = c.storage.Buckets.Insert(c.projectID, &storage.Bucket{
		Name:     name,
		Location: c.region,
		IamConfiguration: &storage.BucketIamConfiguration{
			UniformBucketLevelAccess: &storage.BucketIamConfigurationUniformBucketLevelAccess{
				Enabled: true,
			},
		},
	}).Context(ctx).Do()
	if err != nil {
		if IsConflict(err) {
			// Created by a concurrent or crashed prior run.
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return nil
}
