package config

import (
	"fmt"
	"regexp"
)

// projectIDRegex matches valid Google Cloud project ids: 6-30 characters,
// lowercase letters, digits, hyphens, starting with a letter.
var projectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

// namePrefixRegex matches resource name prefixes safe for service account
// ids and bucket names.
var namePrefixRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,14}$`)

// Validate checks the configuration for structural problems. Precondition
// failures here are never retried; they carry remediation text.
func (d *Deployment) Validate() error {
	if d.ProjectID == "" {
		return fmt.Errorf("projectId is required: set it to the Google Cloud project that will host the backend")
	}
	if !projectIDRegex.MatchString(d.ProjectID) {
		return fmt.Errorf("projectId %q is not a valid Google Cloud project id", d.ProjectID)
	}
	if !namePrefixRegex.MatchString(d.NamePrefix) {
		return fmt.Errorf("namePrefix %q must be 1-15 lowercase alphanumeric characters or hyphens, starting with a letter", d.NamePrefix)
	}
	if d.AIMode != AIModeVertex && d.AIMode != AIModeStudio {
		return fmt.Errorf("aiMode %q is not supported: use %q or %q", d.AIMode, AIModeVertex, AIModeStudio)
	}
	if d.Devices.Port < 0 || d.Devices.Port > 65535 {
		return fmt.Errorf("devices.port %d is out of range", d.Devices.Port)
	}
	if d.Devices.ScanConcurrency < 1 || d.Devices.ScanConcurrency > 256 {
		return fmt.Errorf("devices.scanConcurrency %d is out of range (1-256)", d.Devices.ScanConcurrency)
	}
	if s := d.State.S3; s != nil {
		if s.Bucket == "" {
			return fmt.Errorf("state.s3.bucket is required when the S3 state backend is configured")
		}
		if s.Region == "" {
			return fmt.Errorf("state.s3.region is required when the S3 state backend is configured")
		}
	}
	return nil
}
