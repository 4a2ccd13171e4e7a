package cloud

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vantage-deploy/vantage/internal/config"
	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/state"
	"github.com/vantage-deploy/vantage/internal/util/retry"
)

// fakeCloud records every control-plane call the steps make.
type fakeCloud struct {
	mu       sync.Mutex
	enabled  []string
	accounts map[string]string
	bindings map[string][]string
	buckets  []string
	keys     map[string]string

	enableErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		accounts: make(map[string]string),
		bindings: make(map[string][]string),
		keys:     make(map[string]string),
	}
}

func (f *fakeCloud) EnsureAPIEnabled(_ context.Context, api string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enableErr != nil {
		return f.enableErr
	}
	f.enabled = append(f.enabled, api)
	return nil
}

func (f *fakeCloud) EnsureServiceAccount(_ context.Context, accountID, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := accountID + "@acme-vision-prod.iam.gserviceaccount.com"
	f.accounts[accountID] = email
	return email, nil
}

func (f *fakeCloud) EnsureServiceAccountUser(_ context.Context, serviceAccountEmail, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings["user:"+serviceAccountEmail] = append(f.bindings["user:"+serviceAccountEmail], member)
	return nil
}

func (f *fakeCloud) WaitForComputeDefaultIdentity(context.Context) (string, error) {
	return "123456789-compute@developer.gserviceaccount.com", nil
}

func (f *fakeCloud) EnsureRoleBinding(_ context.Context, member, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings[member] = append(f.bindings[member], role)
	return nil
}

func (f *fakeCloud) EnsureBucket(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, name)
	return nil
}

func (f *fakeCloud) EnsureAPIKey(_ context.Context, displayName string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "AIza-" + displayName
	f.keys[displayName] = key
	return key, nil
}

func (f *fakeCloud) EnsureGateway(_ context.Context, _, gatewayID string, spec []byte) (string, error) {
	if len(spec) == 0 {
		return "", errors.New("empty gateway spec")
	}
	return "https://" + gatewayID + "-abc123.uc.gateway.dev", nil
}

type fakeIaC struct {
	initCalls int
	vars      map[string]string
	applyErr  error
	outputs   map[string]string
}

func (f *fakeIaC) Init(context.Context) error { f.initCalls++; return nil }

func (f *fakeIaC) Apply(_ context.Context, vars map[string]string) error {
	f.vars = vars
	return f.applyErr
}

func (f *fakeIaC) Output(_ context.Context, name string) (string, error) {
	if v, ok := f.outputs[name]; ok {
		return v, nil
	}
	return "", errors.New("no such output")
}

func testContext(cfg *config.Deployment, cloud *fakeCloud) *provisioning.Context {
	pc := provisioning.NewContext(context.Background(), cfg, state.NewDeployment(cfg), nil)
	pc.Cloud = cloud
	pc.Timeouts = &config.Timeouts{RetryMaxAttempts: 2, RetryInitialDelay: time.Millisecond}
	return pc
}

func testConfig() *config.Deployment {
	return &config.Deployment{
		ProjectID:  "acme-vision-prod",
		Region:     "us-central1",
		NamePrefix: "acme",
		AIMode:     config.AIModeVertex,
		Devices:    config.Devices{ScanConcurrency: 20},
	}
}

func TestPreflight_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ProjectID = "Not A Project"
	pc := testContext(cfg, newFakeCloud())

	_, err := (Preflight{}).Run(pc)
	if err == nil {
		t.Fatal("Expected invalid config to fail preflight")
	}
	if !retry.IsFatal(err) {
		t.Errorf("Expected precondition failure to be non-retryable, got %v", err)
	}
}

func TestPreflight_StudioModeNeedsKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.AIMode = config.AIModeStudio
	pc := testContext(cfg, newFakeCloud())

	_, err := (Preflight{}).Run(pc)
	if err == nil {
		t.Fatal("Expected studio mode without webApiKey to fail preflight")
	}
	if !strings.Contains(err.Error(), "webApiKey") {
		t.Errorf("Expected remediation text naming webApiKey, got %v", err)
	}
}

func TestRequiredAPIs_VertexModeAddsAIPlatform(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	vertex := requiredAPIs(cfg)
	if !contains(vertex, "aiplatform.googleapis.com") {
		t.Error("Expected aiplatform enabled in vertex mode")
	}

	cfg.AIMode = config.AIModeStudio
	studio := requiredAPIs(cfg)
	if contains(studio, "aiplatform.googleapis.com") {
		t.Error("Expected aiplatform not enabled in studio mode")
	}
}

func TestEnableAPIs_EnablesAll(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	pc := testContext(testConfig(), cloud)

	if _, err := (EnableAPIs{}).Run(pc); err != nil {
		t.Fatalf("EnableAPIs failed: %v", err)
	}
	if len(cloud.enabled) != len(requiredAPIs(pc.Config)) {
		t.Errorf("Expected %d APIs enabled, got %d", len(requiredAPIs(pc.Config)), len(cloud.enabled))
	}
}

func TestServiceAccounts_PopulatesStateAndOutputs(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	pc := testContext(testConfig(), cloud)

	outputs, err := (ServiceAccounts{}).Run(pc)
	if err != nil {
		t.Fatalf("ServiceAccounts failed: %v", err)
	}

	for _, purpose := range []string{SADeviceAuth, SATokenVendor, SAGateway} {
		email, ok := pc.State.ServiceAccounts[purpose]
		if !ok || !strings.HasPrefix(email, "acme-"+purpose+"@") {
			t.Errorf("Expected %s account in state, got %q", purpose, email)
		}
		if outputs[purpose] != email {
			t.Errorf("Expected %s output persisted, got %q", purpose, outputs[purpose])
		}
	}
}

func TestServiceAccounts_RestoreRebuildsState(t *testing.T) {
	t.Parallel()
	pc := testContext(testConfig(), newFakeCloud())
	(ServiceAccounts{}).Restore(pc, map[string]string{
		SADeviceAuth: "acme-device-auth@p.iam.gserviceaccount.com",
	})
	if pc.State.ServiceAccounts[SADeviceAuth] == "" {
		t.Error("Expected restored account email in state")
	}
}

func TestIAMBindings_GrantsRolesPerPurpose(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	pc := testContext(testConfig(), cloud)
	if _, err := (ServiceAccounts{}).Run(pc); err != nil {
		t.Fatal(err)
	}

	if _, err := (IAMBindings{}).Run(pc); err != nil {
		t.Fatalf("IAMBindings failed: %v", err)
	}

	vendor := "serviceAccount:" + pc.State.ServiceAccounts[SATokenVendor]
	roles := cloud.bindings[vendor]
	if !contains(roles, "roles/iam.serviceAccountTokenCreator") {
		t.Errorf("Expected token creator role on vendor, got %v", roles)
	}
	if !contains(roles, "roles/aiplatform.user") {
		t.Errorf("Expected aiplatform role in vertex mode, got %v", roles)
	}
}

func TestComputeIdentity_ExtractsProjectNumber(t *testing.T) {
	t.Parallel()
	cloud := newFakeCloud()
	pc := testContext(testConfig(), cloud)
	pc.State.ServiceAccounts[SATokenVendor] = "acme-token-vendor@p.iam.gserviceaccount.com"

	outputs, err := (ComputeIdentity{}).Run(pc)
	if err != nil {
		t.Fatalf("ComputeIdentity failed: %v", err)
	}
	if pc.State.ProjectNumber != "123456789" {
		t.Errorf("Expected project number 123456789, got %q", pc.State.ProjectNumber)
	}
	if outputs["computeServiceAccount"] == "" {
		t.Error("Expected compute identity recorded")
	}
	grants := cloud.bindings["user:123456789-compute@developer.gserviceaccount.com"]
	if len(grants) != 1 {
		t.Errorf("Expected token vendor granted actAs on compute identity, got %v", grants)
	}
}

func TestAPIKeys_AdoptsOperatorSuppliedKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.WebAPIKey = "AIza-operator"
	cloud := newFakeCloud()
	pc := testContext(cfg, cloud)

	outputs, err := (APIKeys{}).Run(pc)
	if err != nil {
		t.Fatalf("APIKeys failed: %v", err)
	}
	if pc.State.APIKey != "AIza-operator" || outputs["apiKey"] != "AIza-operator" {
		t.Errorf("Expected operator key adopted, got %q", pc.State.APIKey)
	}
	if len(cloud.keys) != 0 {
		t.Error("Expected no key minted when the config supplies one")
	}
}

func TestIdentityProvider_PassesVarsAndRecordsOutput(t *testing.T) {
	t.Parallel()
	pc := testContext(testConfig(), newFakeCloud())
	pc.State.ServiceAccounts[SADeviceAuth] = "acme-device-auth@p.iam.gserviceaccount.com"
	iac := &fakeIaC{outputs: map[string]string{
		"identity_provider_name": "projects/123/locations/global/workloadIdentityPools/acme/providers/devices",
	}}
	pc.Terraform = iac

	outputs, err := (IdentityProvider{}).Run(pc)
	if err != nil {
		t.Fatalf("IdentityProvider failed: %v", err)
	}
	if iac.initCalls != 1 {
		t.Errorf("Expected one init call, got %d", iac.initCalls)
	}
	if iac.vars["project_id"] != "acme-vision-prod" || iac.vars["device_auth_service_account"] == "" {
		t.Errorf("Expected project and account vars passed, got %v", iac.vars)
	}
	if outputs["identityProvider"] == "" || pc.State.IdentityProvider == "" {
		t.Error("Expected provider name recorded")
	}
}

func TestIdentityProvider_ApplyFailureIsFatal(t *testing.T) {
	t.Parallel()
	pc := testContext(testConfig(), newFakeCloud())
	pc.Terraform = &fakeIaC{applyErr: errors.New("Error: google_iam_workload_identity_pool already borked")}

	_, err := (IdentityProvider{}).Run(pc)
	if err == nil {
		t.Fatal("Expected apply failure to surface")
	}
	if !retry.IsFatal(err) {
		t.Errorf("Expected subprocess failure to be non-retryable, got %v", err)
	}
}

func TestAPIGateway_RecordsURL(t *testing.T) {
	t.Parallel()
	pc := testContext(testConfig(), newFakeCloud())

	outputs, err := (APIGateway{}).Run(pc)
	if err != nil {
		t.Fatalf("APIGateway failed: %v", err)
	}
	if !strings.HasPrefix(outputs["gatewayURL"], "https://acme-gateway") {
		t.Errorf("Expected gateway URL output, got %q", outputs["gatewayURL"])
	}
	if pc.State.GatewayURL != outputs["gatewayURL"] {
		t.Error("Expected gateway URL mirrored into state")
	}
}

func TestRenderOpenAPI(t *testing.T) {
	t.Parallel()
	pc := testContext(testConfig(), newFakeCloud())
	doc, err := renderOpenAPI(pc)
	if err != nil {
		t.Fatalf("renderOpenAPI failed: %v", err)
	}
	text := string(doc)
	for _, want := range []string{
		`swagger: "2.0"`,
		"x-api-key",
		"https://us-central1-acme-vision-prod.cloudfunctions.net/acme-device-auth",
		"https://us-central1-acme-vision-prod.cloudfunctions.net/acme-token-vendor",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected rendered spec to contain %q", want)
		}
	}
	if strings.Contains(text, "options:") || strings.Contains(text, "x-cors-allowed-origins") {
		t.Error("Expected no CORS routes without configured origins")
	}
}

func TestRenderOpenAPI_CORSOrigins(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://app.acme.example", "https://staging.acme.example"}
	pc := testContext(cfg, newFakeCloud())

	doc, err := renderOpenAPI(pc)
	if err != nil {
		t.Fatalf("renderOpenAPI failed: %v", err)
	}
	text := string(doc)
	for _, want := range []string{
		"x-cors-allowed-origins",
		"- https://app.acme.example",
		"- https://staging.acme.example",
		"operationId: deviceAuthInitiateCors",
		"operationId: tokenVendCors",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected rendered spec to contain %q", want)
		}
	}
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
