// Package gcp provides idempotent ensure-style operations against the Google
// Cloud control plane: service enablement, service accounts, IAM bindings,
// storage buckets, API keys, and the API gateway.
//
// Every operation is check-then-act and safe to repeat. The Client is
// constructed once per run and passed by reference to every call; there is no
// package-level client or credential state.
package gcp

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"google.golang.org/api/apigateway/v1"
	"google.golang.org/api/apikeys/v2"
	"google.golang.org/api/cloudbilling/v1"
	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/serviceusage/v1"
	"google.golang.org/api/storage/v1"
	htransport "google.golang.org/api/transport/http"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/util/idempotency"
)

// ServiceAccountManager manages IAM service accounts.
type ServiceAccountManager interface {
	EnsureServiceAccount(ctx context.Context, accountID, displayName string) (string, error)
	EnsureServiceAccountUser(ctx context.Context, serviceAccountEmail, member string) error
	WaitForComputeDefaultIdentity(ctx context.Context) (string, error)
}

// PolicyManager manages project-level IAM policy bindings.
type PolicyManager interface {
	EnsureRoleBinding(ctx context.Context, member, role string) error
}

// ServiceManager manages API enablement.
type ServiceManager interface {
	EnsureAPIEnabled(ctx context.Context, api string) error
}

// StorageManager manages storage buckets.
type StorageManager interface {
	EnsureBucket(ctx context.Context, name string) error
}

// KeyManager manages API keys.
type KeyManager interface {
	EnsureAPIKey(ctx context.Context, displayName string, restrictions []string) (string, error)
}

// GatewayManager manages the API gateway resources.
type GatewayManager interface {
	EnsureGateway(ctx context.Context, apiID, gatewayID string, openAPISpec []byte) (string, error)
}

// Manager combines all control-plane interfaces consumed by the provisioner.
type Manager interface {
	ServiceManager
	ServiceAccountManager
	PolicyManager
	StorageManager
	KeyManager
	GatewayManager
}

// Client implements Manager against the live Google Cloud APIs.
type Client struct {
	projectID string
	region    string
	timeouts  *config.Timeouts
	log       logr.Logger

	serviceusage *serviceusage.Service
	iam          *iam.Service
	crm          *cloudresourcemanager.Service
	billing      *cloudbilling.APIService
	storage      *storage.Service
	apikeys      *apikeys.Service
	apigateway   *apigateway.Service

	// idem caches slow read-only lookups that many operations repeat, such
	// as the project billing check made before every billing-gated enable.
	idem *idempotency.Cache
}

// NewClient builds a client for one project. The supplied options carry
// credentials; tests pass option.WithEndpoint and option.WithoutAuthentication
// to point at a fake server.
func NewClient(ctx context.Context, projectID, region string, timeouts *config.Timeouts, log logr.Logger, opts ...option.ClientOption) (*Client, error) {
	// Every service shares one HTTP client bounded by the CloudCall timeout.
	// The transport is built from the same options, so credentials and test
	// endpoints still apply.
	hc, _, err := htransport.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build cloud transport: %w", err)
	}
	hc.Timeout = timeouts.CloudCall
	opts = append(opts, option.WithHTTPClient(hc))

	su, err := serviceusage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create serviceusage client: %w", err)
	}
	iamSvc, err := iam.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create iam client: %w", err)
	}
	crm, err := cloudresourcemanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create resourcemanager client: %w", err)
	}
	billing, err := cloudbilling.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create billing client: %w", err)
	}
	st, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	ak, err := apikeys.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create apikeys client: %w", err)
	}
	ag, err := apigateway.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create apigateway client: %w", err)
	}

	return &Client{
		projectID:    projectID,
		region:       region,
		timeouts:     timeouts,
		log:          log,
		serviceusage: su,
		iam:          iamSvc,
		crm:          crm,
		billing:      billing,
		storage:      st,
		apikeys:      ak,
		apigateway:   ag,
		idem:         idempotency.New(),
	}, nil
}

// ProjectID returns the project this client targets.
func (c *Client) ProjectID() string {
	return c.projectID
}
