package provisioning

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/platform/axis"
	"github.com/vantage-deploy/vantage/internal/platform/gcp"
	"github.com/vantage-deploy/vantage/internal/scan"
	"github.com/vantage-deploy/vantage/internal/state"
)

// State holds the in-memory results of completed steps. It is progressively
// populated as steps run and rebuilt from the persisted deployment record on
// resume, so later steps never care which run produced a value.
type State struct {
	// Cloud results
	ProjectNumber    string
	ServiceAccounts  map[string]string // purpose -> email
	Bucket           string
	APIKey           string
	IdentityProvider string
	GatewayURL       string

	// Device results
	Cameras []*axis.Camera
}

// NewState creates an empty provisioning state.
func NewState() *State {
	return &State{
		ServiceAccounts: make(map[string]string),
	}
}

// DeviceManager is the device-facing surface the configuration steps need.
// Satisfied by *axis.Client.
type DeviceManager interface {
	GetDeviceInfo(ctx context.Context, cam *axis.Camera) (*axis.DeviceInfo, error)
	Configure(ctx context.Context, cam *axis.Camera, payload axis.ConfigPayload) error
	ActivateLicense(ctx context.Context, cam *axis.Camera, key string) (*axis.LicenseStatus, error)
}

// Discoverer runs the network sweep. Satisfied by *scan.Scanner.
type Discoverer interface {
	Run(ctx context.Context, onProgress func(scan.Progress)) ([]*axis.Camera, error)
}

// IaCRunner applies the composite identity-provider resources. Satisfied by
// *terraform.Runner.
type IaCRunner interface {
	Init(ctx context.Context) error
	Apply(ctx context.Context, vars map[string]string) error
	Output(ctx context.Context, name string) (string, error)
}

// Context wraps every dependency a step may need, plus the deployment record
// the pipeline checkpoints into.
type Context struct {
	context.Context
	Config     *config.Deployment
	State      *State
	Deployment *state.Deployment
	Cloud      gcp.Manager
	Devices    DeviceManager
	Scanner    Discoverer
	Terraform  IaCRunner
	Store      state.Store
	Observer   Observer
	Timeouts   *config.Timeouts
	Log        logr.Logger
}

// NewContext creates a provisioning context around a deployment record.
func NewContext(ctx context.Context, cfg *config.Deployment, d *state.Deployment, store state.Store) *Context {
	return &Context{
		Context:    ctx,
		Config:     cfg,
		State:      NewState(),
		Deployment: d,
		Store:      store,
		Observer:   NewLogObserver(logr.Discard()),
		Timeouts:   config.LoadTimeouts(),
		Log:        logr.Discard(),
	}
}
