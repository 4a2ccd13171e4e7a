package axis

import (
	"net"
	"strconv"
)

// DeviceClass is what a probed address turned out to be.
type DeviceClass string

const (
	ClassCamera  DeviceClass = "camera"
	ClassSpeaker DeviceClass = "speaker"
	ClassUnknown DeviceClass = "unknown"
)

// Camera is a discovered or manually entered device. Instances are created by
// the scanner or from config and mutated as configuration and licensing
// succeed; they are never persisted across runs.
type Camera struct {
	Address      string
	Port         int
	Class        DeviceClass
	Manufacturer string
	Model        string
	Serial       string

	Username string
	Password string

	Reachable    bool
	AuthRequired bool

	Configured bool
	Licensed   bool
}

// BaseURL returns the https origin for the device.
func (c *Camera) BaseURL() string {
	if c.Port == 0 || c.Port == 443 {
		return "https://" + c.Address
	}
	return "https://" + net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// ConfigPayload is the opaque document pushed to the device's analytics app.
// The device treats unknown keys as pass-through, so the struct only names
// the fields the deployment produces.
type ConfigPayload struct {
	GatewayURL  string `json:"gatewayUrl"`
	APIKey      string `json:"apiKey"`
	ProjectID   string `json:"projectId"`
	Region      string `json:"region"`
	CustomerID  string `json:"customerId,omitempty"`
	LicenseKey  string `json:"licenseKey,omitempty"`
	WebAppID    string `json:"webAppId,omitempty"`
	StorageName string `json:"storageBucket,omitempty"`
}

// DeviceInfo is the subset of the basicdeviceinfo property list the
// deployment cares about.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

// LicenseStatus is the device's answer to a license activation request.
type LicenseStatus struct {
	Status  string
	Expires string
}
