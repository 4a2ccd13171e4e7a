// Package axis speaks the VAPIX-style HTTP CGI protocol of the camera fleet:
// device identification, analytics app configuration, and license activation.
package axis

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/util/breaker"
	"github.com/vantage-deploy/vantage/internal/util/retry"
)

const (
	deviceInfoPath = "/axis-cgi/basicdeviceinfo.cgi"
	audioPath      = "/axis-cgi/audio/transmit.cgi"
	configPath     = "/local/VantageAnalytics/config.cgi"
	licensePath    = "/local/VantageAnalytics/license.cgi"

	// Firmware answers a config write with 500 and this marker in the body
	// when it has accepted the write and is restarting its task queue. That
	// shape is a success, not a failure.
	threadPoolSignature = "ThreadPool"

	// Per-device transport breaker: after breakerThreshold consecutive
	// connection failures the device is failed fast for breakerReset.
	breakerThreshold = 3
	breakerReset     = 30 * time.Second
	breakerProbes    = 1
)

// Client talks to one device at a time; it is safe for concurrent use across
// devices because all per-device state lives in the Camera value.
type Client struct {
	http *http.Client
	log  logr.Logger

	mu       sync.Mutex
	breakers map[string]*breaker.Breaker
}

// NewClient builds a device client. Cameras ship self-signed certificates,
// so verification is disabled for the device-local TLS connection.
func NewClient(timeouts *config.Timeouts, log logr.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: timeouts.DeviceCall,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		log:      log,
		breakers: make(map[string]*breaker.Breaker),
	}
}

// breakerFor returns the transport breaker for one device address.
func (c *Client) breakerFor(address string) *breaker.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[address]
	if !ok {
		br = breaker.New(breakerThreshold, breakerReset, breakerProbes)
		br.OnTransition(func(from, to breaker.State) {
			breakerTransitions.WithLabelValues(to.String()).Inc()
			c.log.Info("device breaker state changed", "address", address, "from", from.String(), "to", to.String())
		})
		c.breakers[address] = br
	}
	return br
}

type deviceInfoResponse struct {
	Data struct {
		PropertyList map[string]string `json:"propertyList"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Identify probes the address and classifies it in place. A nil return with
// Class left unknown means the address is simply not a device we care about;
// errors are reserved for context cancellation and credential-level failures.
func (c *Client) Identify(ctx context.Context, cam *Camera) error {
	resp, body, err := c.send(ctx, http.MethodGet, cam.BaseURL()+deviceInfoPath, nil, "")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cam.Reachable = false
		cam.Class = ClassUnknown
		return nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		cam.AuthRequired = true
		if c.isSpeaker(ctx, cam) {
			cam.Class = ClassSpeaker
			cam.Reachable = false
			c.log.V(1).Info("classified as unreachable speaker", "address", cam.Address)
			return nil
		}
	case looksLikeCamera(resp.StatusCode, body):
		// GET rejected with the use-POST hint, or an actual property answer.
	default:
		cam.Reachable = true
		cam.Class = ClassUnknown
		return nil
	}

	info, err := c.GetDeviceInfo(ctx, cam)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.V(1).Info("device info fetch failed", "address", cam.Address, "error", err.Error())
		cam.Reachable = true
		cam.Class = ClassUnknown
		return nil
	}

	cam.Reachable = true
	cam.Class = ClassCamera
	cam.Manufacturer = info.Manufacturer
	cam.Model = info.Model
	cam.Serial = info.Serial
	return nil
}

// looksLikeCamera accepts the method-not-supported rejection of a GET probe
// as a positive match: only the camera CGI answers that way.
func looksLikeCamera(status int, body []byte) bool {
	if status == http.StatusMethodNotAllowed {
		return true
	}
	text := strings.ToLower(string(body))
	if strings.Contains(text, "method") && strings.Contains(text, "not supported") {
		return true
	}
	if strings.Contains(text, "propertylist") {
		return true
	}
	return false
}

// isSpeaker reports whether the audio endpoint also demands auth, which is
// the signature of a speaker rather than a camera.
func (c *Client) isSpeaker(ctx context.Context, cam *Camera) bool {
	resp, _, err := c.send(ctx, http.MethodGet, cam.BaseURL()+audioPath, nil, "")
	if err != nil {
		return false
	}
	return resp.StatusCode == http.StatusUnauthorized
}

// GetDeviceInfo fetches the full property list over the POST API.
func (c *Client) GetDeviceInfo(ctx context.Context, cam *Camera) (*DeviceInfo, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"apiVersion": "1.0",
		"method":     "getAllProperties",
	})
	resp, body, err := c.do(ctx, cam, http.MethodPost, deviceInfoPath, reqBody)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, retry.Fatal(fmt.Errorf("device %s rejected credentials for user %q", cam.Address, cam.Username))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device info request to %s returned %d: %w", cam.Address, resp.StatusCode,
			&retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var parsed deviceInfoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("device %s returned non-JSON device info: %w", cam.Address, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("device %s device info error %d: %s", cam.Address, parsed.Error.Code, parsed.Error.Message)
	}

	props := parsed.Data.PropertyList
	return &DeviceInfo{
		Manufacturer: props["Brand"],
		Model:        props["ProdNbr"],
		Serial:       props["SerialNumber"],
		Firmware:     props["Version"],
	}, nil
}

type configResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Configure pushes the deployment document to the analytics app. A 500 whose
// body carries the stopped-task-queue marker means the device took the write
// and is restarting, which counts as success.
func (c *Client) Configure(ctx context.Context, cam *Camera, payload ConfigPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode device configuration: %w", err)
	}

	resp, respBody, err := c.do(ctx, cam, http.MethodPost, configPath, body)
	if err != nil {
		return fmt.Errorf("failed to push configuration to %s: %w", cam.Address, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var parsed configResponse
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr == nil {
			if parsed.Error != nil {
				return fmt.Errorf("device %s rejected configuration: %s", cam.Address, parsed.Error.Message)
			}
			if parsed.Status != "" && !strings.EqualFold(parsed.Status, "success") && !strings.EqualFold(parsed.Status, "ok") {
				return fmt.Errorf("device %s reported configuration status %q: %s", cam.Address, parsed.Status, parsed.Message)
			}
		}
		cam.Configured = true
		return nil

	case resp.StatusCode == http.StatusInternalServerError && bytes.Contains(respBody, []byte(threadPoolSignature)):
		c.log.Info("device accepted configuration and is restarting its analytics process", "address", cam.Address)
		cam.Configured = true
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		return retry.Fatal(fmt.Errorf("device %s rejected credentials for user %q", cam.Address, cam.Username))

	default:
		// Carry the status code so the retry policy can tell a transient
		// 5xx from a permanent 4xx.
		return fmt.Errorf("device %s answered configuration push with %d: %w", cam.Address, resp.StatusCode,
			&retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))})
	}
}

type licenseResponse struct {
	Status  string `json:"status"`
	Expires string `json:"expires"`
	Message string `json:"message"`
}

// ActivateLicense activates the analytics license on a configured device.
// Callers treat a failure here as advisory; it never undoes configuration.
func (c *Client) ActivateLicense(ctx context.Context, cam *Camera, key string) (*LicenseStatus, error) {
	body, _ := json.Marshal(map[string]string{"licenseKey": key})
	resp, respBody, err := c.do(ctx, cam, http.MethodPost, licensePath, body)
	if err != nil {
		return nil, fmt.Errorf("failed to activate license on %s: %w", cam.Address, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device %s answered license activation with %d: %w", cam.Address, resp.StatusCode,
			&retry.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))})
	}

	var parsed licenseResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("device %s returned non-JSON license response: %w", cam.Address, err)
	}
	if strings.EqualFold(parsed.Status, "error") || strings.EqualFold(parsed.Status, "failed") {
		return nil, fmt.Errorf("device %s license activation failed: %s", cam.Address, parsed.Message)
	}

	cam.Licensed = true
	return &LicenseStatus{Status: parsed.Status, Expires: parsed.Expires}, nil
}

// do runs one exchange through the device's transport breaker. Only
// connection-level failures trip the breaker; any HTTP answer, 401 included,
// proves the device reachable.
func (c *Client) do(ctx context.Context, cam *Camera, method, path string, body []byte) (*http.Response, []byte, error) {
	var resp *http.Response
	var respBody []byte
	err := c.breakerFor(cam.BaseURL()).Do(func() error {
		var sendErr error
		resp, respBody, sendErr = c.exchange(ctx, cam, method, path, body)
		return sendErr
	})
	if errors.Is(err, breaker.ErrOpen) {
		return nil, nil, fmt.Errorf("device %s: %w", cam.Address, err)
	}
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}

// exchange performs the digest handshake: one unauthenticated attempt, then
// on 401 a single authenticated retry with the computed Authorization header.
// Basic is used when the challenge asks for it.
func (c *Client) exchange(ctx context.Context, cam *Camera, method, path string, body []byte) (*http.Response, []byte, error) {
	url := cam.BaseURL() + path

	resp, respBody, err := c.send(ctx, method, url, body, "")
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, respBody, nil
	}

	ch, err := parseChallenge(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		// Unintelligible challenge; hand the 401 back to the caller.
		return resp, respBody, nil
	}

	var auth string
	if strings.EqualFold(ch.scheme, "Basic") {
		auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(cam.Username+":"+cam.Password))
	} else {
		auth = ch.authorization(cam.Username, cam.Password, method, path)
	}
	return c.send(ctx, method, url, body, auth)
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, auth string) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}
