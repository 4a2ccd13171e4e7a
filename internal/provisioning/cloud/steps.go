// Package cloud implements the pipeline steps that provision Google Cloud
// resources for a deployment.
package cloud

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// Service account purposes. The account id is NamePrefix + "-" + suffix.
const (
	SADeviceAuth  = "device-auth"
	SATokenVendor = "token-vendor"
	SAGateway     = "gateway-invoker"
)

type saSpec struct {
	purpose     string
	displayName string
	roles       []string
}

// serviceAccounts describes every account the deployment owns and the
// project roles it needs. iam-bindings consumes the same table so the two
// steps can never drift apart.
func serviceAccounts(cfg *config.Deployment) []saSpec {
	specs := []saSpec{
		{
			purpose:     SADeviceAuth,
			displayName: "Device authentication broker",
			roles: []string{
				"roles/datastore.user",
				"roles/firebaseauth.admin",
			},
		},
		{
			purpose:     SATokenVendor,
			displayName: "Scoped token vendor",
			roles: []string{
				"roles/iam.serviceAccountTokenCreator",
				"roles/datastore.user",
				"roles/storage.objectAdmin",
			},
		},
		{
			purpose:     SAGateway,
			displayName: "API gateway invoker",
			roles: []string{
				"roles/run.invoker",
			},
		},
	}
	if cfg.AIMode == config.AIModeVertex {
		for i := range specs {
			if specs[i].purpose == SATokenVendor {
				specs[i].roles = append(specs[i].roles, "roles/aiplatform.user")
			}
		}
	}
	return specs
}

// requiredAPIs lists the services a deployment enables. Vertex mode adds the
// AI platform on top of the shared baseline.
func requiredAPIs(cfg *config.Deployment) []string {
	apis := []string{
		"serviceusage.googleapis.com",
		"cloudresourcemanager.googleapis.com",
		"iam.googleapis.com",
		"iamcredentials.googleapis.com",
		"sts.googleapis.com",
		"storage.googleapis.com",
		"firestore.googleapis.com",
		"identitytoolkit.googleapis.com",
		"apikeys.googleapis.com",
		"apigateway.googleapis.com",
		"servicemanagement.googleapis.com",
		"servicecontrol.googleapis.com",
		"cloudfunctions.googleapis.com",
		"run.googleapis.com",
	}
	if cfg.AIMode == config.AIModeVertex {
		apis = append(apis, "aiplatform.googleapis.com")
	}
	return apis
}

// Steps returns the cloud half of the pipeline in execution order.
func Steps() []provisioning.Step {
	return []provisioning.Step{
		Preflight{},
		EnableAPIs{},
		ServiceAccounts{},
		IAMBindings{},
		ComputeIdentity{},
		Storage{},
		APIKeys{},
		IdentityProvider{},
		APIGateway{},
	}
}

// Preflight verifies the run can plausibly succeed before any cloud call.
type Preflight struct{}

func (Preflight) Name() string    { return "preflight" }
func (Preflight) Needs() []string { return nil }

func (Preflight) Run(pc *provisioning.Context) (map[string]string, error) {
	if err := pc.Config.Validate(); err != nil {
		return nil, retry.Fatal(err)
	}
	if pc.Config.AIMode == config.AIModeStudio && pc.Config.WebAPIKey == "" {
		return nil, retry.Fatal(fmt.Errorf(
			"studio mode needs webApiKey set in the config; create a key in AI Studio and rerun"))
	}

	// The identity-provider step shells out; fail here rather than forty
	// minutes in.
	binary := pc.Config.Terraform.Binary
	if binary == "" {
		binary = "terraform"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, retry.Fatal(fmt.Errorf(
			"terraform binary %q not found in PATH; install it or set terraform.binary", binary))
	}
	if pc.Config.Terraform.WorkDir != "" {
		if _, err := os.Stat(pc.Config.Terraform.WorkDir); err != nil {
			return nil, retry.Fatal(fmt.Errorf(
				"terraform work dir %q is not accessible: %w", pc.Config.Terraform.WorkDir, err))
		}
	}
	return nil, nil
}

// EnableAPIs turns on every service the deployment depends on.
type EnableAPIs struct{}

func (EnableAPIs) Name() string    { return "apis-enabled" }
func (EnableAPIs) Needs() []string { return []string{"preflight"} }

func (s EnableAPIs) Run(pc *provisioning.Context) (map[string]string, error) {
	apis := requiredAPIs(pc.Config)
	for i, api := range apis {
		pc.Observer.Progress(s.Name(), i, len(apis))
		err := retry.Do(pc, func() error {
			return pc.Cloud.EnsureAPIEnabled(pc, api)
		},
			retry.WithMaxAttempts(pc.Timeouts.RetryMaxAttempts),
			retry.WithInitialDelay(pc.Timeouts.RetryInitialDelay),
			retry.WithOnRetry(func(int, time.Duration, error) {
				provisioning.ObserveRetry(s.Name())
			}))
		if err != nil {
			return nil, fmt.Errorf("failed to enable %s: %w", api, err)
		}
	}
	pc.Observer.Progress(s.Name(), len(apis), len(apis))
	return nil, nil
}

// ServiceAccounts creates the deployment's service accounts and waits for
// each to be visible before moving on.
type ServiceAccounts struct{}

func (ServiceAccounts) Name() string    { return "service-accounts" }
func (ServiceAccounts) Needs() []string { return []string{"apis-enabled"} }

func (s ServiceAccounts) Run(pc *provisioning.Context) (map[string]string, error) {
	outputs := make(map[string]string)
	for _, spec := range serviceAccounts(pc.Config) {
		accountID := pc.Config.ServiceAccountID(spec.purpose)
		provisioning.LogResourceCreating(pc.Observer, s.Name(), "service account", accountID)

		email, err := pc.Cloud.EnsureServiceAccount(pc, accountID, spec.displayName)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure service account %s: %w", accountID, err)
		}

		pc.State.ServiceAccounts[spec.purpose] = email
		outputs[spec.purpose] = email
		provisioning.LogResourceCreated(pc.Observer, s.Name(), "service account", email)
	}
	return outputs, nil
}

func (ServiceAccounts) Restore(pc *provisioning.Context, resources map[string]string) {
	for purpose, email := range resources {
		pc.State.ServiceAccounts[purpose] = email
	}
}

// IAMBindings grants each service account its project roles.
type IAMBindings struct{}

func (IAMBindings) Name() string    { return "iam-bindings" }
func (IAMBindings) Needs() []string { return []string{"service-accounts"} }

func (s IAMBindings) Run(pc *provisioning.Context) (map[string]string, error) {
	for _, spec := range serviceAccounts(pc.Config) {
		email, ok := pc.State.ServiceAccounts[spec.purpose]
		if !ok {
			return nil, fmt.Errorf("no service account recorded for %s", spec.purpose)
		}
		member := "serviceAccount:" + email
		for _, role := range spec.roles {
			if err := pc.Cloud.EnsureRoleBinding(pc, member, role); err != nil {
				return nil, fmt.Errorf("failed to bind %s to %s: %w", role, email, err)
			}
			pc.Log.V(1).Info("role bound", "member", member, "role", role)
		}
	}
	return nil, nil
}

// ComputeIdentity waits for the project's compute default service account,
// which Google creates asynchronously, then lets the token vendor act as it.
type ComputeIdentity struct{}

func (ComputeIdentity) Name() string    { return "compute-identity" }
func (ComputeIdentity) Needs() []string { return []string{"service-accounts"} }

func (s ComputeIdentity) Run(pc *provisioning.Context) (map[string]string, error) {
	email, err := pc.Cloud.WaitForComputeDefaultIdentity(pc)
	if err != nil {
		return nil, err
	}
	pc.State.ProjectNumber = projectNumberFromComputeEmail(email)

	if vendor, ok := pc.State.ServiceAccounts[SATokenVendor]; ok {
		if err := pc.Cloud.EnsureServiceAccountUser(pc, email, "serviceAccount:"+vendor); err != nil {
			return nil, fmt.Errorf("failed to grant token vendor access to compute identity: %w", err)
		}
	}
	return map[string]string{"computeServiceAccount": email}, nil
}

func (ComputeIdentity) Restore(pc *provisioning.Context, resources map[string]string) {
	if email, ok := resources["computeServiceAccount"]; ok {
		pc.State.ProjectNumber = projectNumberFromComputeEmail(email)
	}
}

// projectNumberFromComputeEmail extracts the leading project number from
// "{number}-compute@developer.gserviceaccount.com".
func projectNumberFromComputeEmail(email string) string {
	for i := range email {
		if email[i] < '0' || email[i] > '9' {
			return email[:i]
		}
	}
	return email
}

// Storage creates the analytics bucket.
type Storage struct{}

func (Storage) Name() string    { return "storage" }
func (Storage) Needs() []string { return []string{"apis-enabled"} }

func (s Storage) Run(pc *provisioning.Context) (map[string]string, error) {
	bucket := pc.Config.BucketName()
	if err := pc.Cloud.EnsureBucket(pc, bucket); err != nil {
		return nil, err
	}
	pc.State.Bucket = bucket
	provisioning.LogResourceCreated(pc.Observer, s.Name(), "bucket", bucket)
	return map[string]string{"bucket": bucket}, nil
}

func (Storage) Restore(pc *provisioning.Context, resources map[string]string) {
	pc.State.Bucket = resources["bucket"]
}

// APIKeys mints the device-facing API key, or adopts the operator-supplied
// one when the config carries it.
type APIKeys struct{}

func (APIKeys) Name() string    { return "api-keys" }
func (APIKeys) Needs() []string { return []string{"apis-enabled"} }

func (s APIKeys) Run(pc *provisioning.Context) (map[string]string, error) {
	if pc.Config.WebAPIKey != "" {
		pc.State.APIKey = pc.Config.WebAPIKey
		provisioning.LogResourceExists(pc.Observer, s.Name(), "API key", "operator-supplied")
		return map[string]string{"apiKey": pc.Config.WebAPIKey}, nil
	}

	displayName := pc.Config.NamePrefix + "-device-key"
	key, err := pc.Cloud.EnsureAPIKey(pc, displayName, pc.Config.APIKeyRestrictions)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure API key %s: %w", displayName, err)
	}
	pc.State.APIKey = key
	provisioning.LogResourceCreated(pc.Observer, s.Name(), "API key", displayName)
	return map[string]string{"apiKey": key}, nil
}

func (APIKeys) Restore(pc *provisioning.Context, resources map[string]string) {
	pc.State.APIKey = resources["apiKey"]
}

// IdentityProvider applies the workload identity federation module through
// the external IaC tool. The provider is a composite of pools, providers and
// attribute mappings that only the IaC module expresses atomically.
type IdentityProvider struct{}

func (IdentityProvider) Name() string    { return "identity-provider" }
func (IdentityProvider) Needs() []string { return []string{"service-accounts"} }

func (s IdentityProvider) Run(pc *provisioning.Context) (map[string]string, error) {
	if err := pc.Terraform.Init(pc); err != nil {
		return nil, fmt.Errorf("terraform init failed: %w", err)
	}

	vars := map[string]string{
		"project_id":  pc.Config.ProjectID,
		"region":      pc.Config.Region,
		"name_prefix": pc.Config.NamePrefix,
	}
	if email, ok := pc.State.ServiceAccounts[SADeviceAuth]; ok {
		vars["device_auth_service_account"] = email
	}
	if email, ok := pc.State.ServiceAccounts[SATokenVendor]; ok {
		vars["token_vendor_service_account"] = email
	}

	if err := pc.Terraform.Apply(pc, vars); err != nil {
		// Subprocess output travels up verbatim; the operator needs the
		// provider's own error text.
		return nil, retry.Fatal(err)
	}

	provider, err := pc.Terraform.Output(pc, "identity_provider_name")
	if err != nil {
		return nil, fmt.Errorf("failed to read identity provider output: %w", err)
	}
	pc.State.IdentityProvider = provider
	return map[string]string{"identityProvider": provider}, nil
}

func (IdentityProvider) Restore(pc *provisioning.Context, resources map[string]string) {
	pc.State.IdentityProvider = resources["identityProvider"]
}

// APIGateway provisions the managed gateway fronting the deployment's
// functions and records the hostname the devices will call.
type APIGateway struct{}

func (APIGateway) Name() string { return "api-gateway" }
func (APIGateway) Needs() []string {
	return []string{"service-accounts", "api-keys", "identity-provider"}
}

func (s APIGateway) Run(pc *provisioning.Context) (map[string]string, error) {
	apiID := pc.Config.NamePrefix + "-api"
	gatewayID := pc.Config.NamePrefix + "-gateway"

	doc, err := renderOpenAPI(pc)
	if err != nil {
		return nil, err
	}

	url, err := pc.Cloud.EnsureGateway(pc, apiID, gatewayID, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure API gateway %s: %w", gatewayID, err)
	}
	pc.State.GatewayURL = url
	provisioning.LogResourceCreated(pc.Observer, s.Name(), "API gateway", url)
	return map[string]string{"gatewayURL": url}, nil
}

func (APIGateway) Restore(pc *provisioning.Context, resources map[string]string) {
	pc.State.GatewayURL = resources["gatewayURL"]
}
