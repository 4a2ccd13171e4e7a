package retry

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"google.golang.org/api/googleapi"
)

// transientSubstrings are message fragments that indicate an error which
// resolves itself once the control plane catches up. Matching on message text
// is a last resort for errors that arrive untyped.
var transientSubstrings = []string{
	"does not exist",
	"not found",
	"propagat",
	"try again",
	"internal error",
	"unavailable",
	"timeout",
	"connection reset",
	"rate limit",
}

// IsRetryable reports whether an error is worth retrying: network-level
// failures, HTTP 429/409/5xx, and known transient message signatures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	if code, ok := HTTPStatus(err); ok {
		return retryableStatus(code)
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

// HTTPStatus extracts an HTTP status code from an error, if it carries one.
func HTTPStatus(err error) (int, bool) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code, true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	switch {
	case code == http.StatusTooManyRequests:
		return true
	case code == http.StatusConflict:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// StatusError is an error carrying an HTTP status code, for call sites that
// speak plain HTTP rather than a typed API client.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return http.StatusText(e.Code)
	}
	return e.Body
}
