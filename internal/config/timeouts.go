package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	CloudCall         time.Duration // Timeout for a single cloud control-plane call
	DeviceCall        time.Duration // Timeout for a single device configuration call
	Probe             time.Duration // Timeout for a single scan probe
	APISettle         time.Duration // Settle delay after enabling an API
	SAPropagation     time.Duration // Interval between service-account visibility polls
	ComputeIdentity   time.Duration // Total budget for the default compute identity to appear
	GatewayActive     time.Duration // Total budget for the API gateway to become ACTIVE
	BillingCacheTTL   time.Duration // How long a billing-status lookup stays cached
	RetryMaxAttempts  int           // Maximum number of retry attempts
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - VANTAGE_TIMEOUT_CLOUD_CALL (default: 30s)
//   - VANTAGE_TIMEOUT_DEVICE_CALL (default: 20s)
//   - VANTAGE_TIMEOUT_PROBE (default: 3s)
//   - VANTAGE_TIMEOUT_API_SETTLE (default: 10s)
//   - VANTAGE_TIMEOUT_SA_PROPAGATION (default: 5s)
//   - VANTAGE_TIMEOUT_COMPUTE_IDENTITY (default: 5m)
//   - VANTAGE_TIMEOUT_GATEWAY_ACTIVE (default: 10m)
//   - VANTAGE_BILLING_CACHE_TTL (default: 5m)
//   - VANTAGE_RETRY_MAX_ATTEMPTS (default: 5)
//   - VANTAGE_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		CloudCall:         parseDuration("VANTAGE_TIMEOUT_CLOUD_CALL", 30*time.Second),
		DeviceCall:        parseDuration("VANTAGE_TIMEOUT_DEVICE_CALL", 20*time.Second),
		Probe:             parseDuration("VANTAGE_TIMEOUT_PROBE", 3*time.Second),
		APISettle:         parseDuration("VANTAGE_TIMEOUT_API_SETTLE", 10*time.Second),
		SAPropagation:     parseDuration("VANTAGE_TIMEOUT_SA_PROPAGATION", 5*time.Second),
		ComputeIdentity:   parseDuration("VANTAGE_TIMEOUT_COMPUTE_IDENTITY", 5*time.Minute),
		GatewayActive:     parseDuration("VANTAGE_TIMEOUT_GATEWAY_ACTIVE", 10*time.Minute),
		BillingCacheTTL:   parseDuration("VANTAGE_BILLING_CACHE_TTL", 5*time.Minute),
		RetryMaxAttempts:  parseInt("VANTAGE_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay: parseDuration("VANTAGE_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return n
}
