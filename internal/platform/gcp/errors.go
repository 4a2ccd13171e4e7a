package gcp

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// isGoogleAPICode checks if the error is a Google API error with one of the
// given HTTP status codes.
func isGoogleAPICode(err error, codes ...int) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, code := range codes {
			if apiErr.Code == code {
				return true
			}
		}
	}
	return false
}

// IsNotFound checks if an error indicates a resource was not found.
func IsNotFound(err error) bool {
	return isGoogleAPICode(err, http.StatusNotFound)
}

// IsConflict checks if an error indicates a concurrent-modification conflict.
// IAM policy writes return 409 when the policy etag went stale; the caller
// re-fetches and re-applies.
func IsConflict(err error) bool {
	return isGoogleAPICode(err, http.StatusConflict)
}

// IsPermissionDenied checks for a 403. A 403 may be a missing role (fatal) or
// an API still enabling (transient); callers decide by context.
func IsPermissionDenied(err error) bool {
	return isGoogleAPICode(err, http.StatusForbidden)
}

// IsRateLimited checks if an error indicates rate limiting.
func IsRateLimited(err error) bool {
	return isGoogleAPICode(err, http.StatusTooManyRequests)
}

// ProbeOutcome is the typed result of an existence probe during a
// propagation barrier. The polling loop branches on the tag instead of
// string-matching a caught error.
type ProbeOutcome int

const (
	// ProbeFound means the resource is visible; polling stops successfully.
	ProbeFound ProbeOutcome = iota
	// ProbeNotYet means the resource has not propagated; polling continues.
	ProbeNotYet
	// ProbeFatal means the probe hit a non-propagation failure; polling stops
	// with the underlying error.
	ProbeFatal
)

func (o ProbeOutcome) String() string {
	switch o {
	case ProbeFound:
		return "found"
	case ProbeNotYet:
		return "not-yet"
	case ProbeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// classifyProbe turns a lookup error into a ProbeOutcome. A 403 during
// propagation polling is treated like not-yet: IAM returns it for accounts
// that exist but are not yet readable.
func classifyProbe(err error) ProbeOutcome {
	switch {
	case err == nil:
		return ProbeFound
	case IsNotFound(err) || IsPermissionDenied(err):
		return ProbeNotYet
	default:
		return ProbeFatal
	}
}
