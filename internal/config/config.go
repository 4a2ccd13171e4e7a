// Package config defines the operator-supplied deployment configuration and
// its loading, defaulting, and validation.
package config

// AIMode selects which AI backend the provisioned stack talks to.
type AIMode string

const (
	// AIModeVertex uses the project's Vertex AI models through the token vendor.
	AIModeVertex AIMode = "vertex"
	// AIModeStudio uses a Studio API key directly from the device.
	AIModeStudio AIMode = "studio"
)

// Deployment is the operator input for one run. Immutable once a run starts.
type Deployment struct {
	ProjectID  string `yaml:"projectId" mapstructure:"projectId"`
	Region     string `yaml:"region" mapstructure:"region"`
	NamePrefix string `yaml:"namePrefix" mapstructure:"namePrefix"`
	AIMode     AIMode `yaml:"aiMode" mapstructure:"aiMode"`

	// Pre-existing web app identifiers; left empty, the deployment creates
	// its own.
	WebAppID     string `yaml:"webAppId,omitempty" mapstructure:"webAppId"`
	WebAPIKey    string `yaml:"webApiKey,omitempty" mapstructure:"webApiKey"`

	CORSOrigins        []string `yaml:"corsOrigins,omitempty" mapstructure:"corsOrigins"`
	APIKeyRestrictions []string `yaml:"apiKeyRestrictions,omitempty" mapstructure:"apiKeyRestrictions"`

	CustomerID string `yaml:"customerId,omitempty" mapstructure:"customerId"`
	LicenseKey string `yaml:"licenseKey,omitempty" mapstructure:"licenseKey"`

	Devices   Devices   `yaml:"devices" mapstructure:"devices"`
	Terraform Terraform `yaml:"terraform" mapstructure:"terraform"`
	State     State     `yaml:"state" mapstructure:"state"`
}

// Devices configures discovery and device credentials.
type Devices struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Port     int    `yaml:"port" mapstructure:"port"`

	// Manual lists addresses to configure without scanning.
	Manual []string `yaml:"manual,omitempty" mapstructure:"manual"`

	// ScanConcurrency bounds simultaneous probes during discovery.
	ScanConcurrency int `yaml:"scanConcurrency" mapstructure:"scanConcurrency"`
}

// Terraform configures the external IaC tool used for the identity-provider
// composite resource.
type Terraform struct {
	Binary    string `yaml:"binary" mapstructure:"binary"`
	WorkDir   string `yaml:"workDir" mapstructure:"workDir"`
	ExtraArgs string `yaml:"extraArgs,omitempty" mapstructure:"extraArgs"`
}

// State configures where deployment checkpoints live.
type State struct {
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Optional S3-compatible mirror for off-machine resume.
	S3 *S3 `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3 holds the remote state backend settings.
type S3 struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	AccessKey string `yaml:"accessKey" mapstructure:"accessKey"`
	SecretKey string `yaml:"secretKey" mapstructure:"secretKey"`
}

// BucketName returns the analytics storage bucket name for this deployment.
func (d *Deployment) BucketName() string {
	return d.ProjectID + "-" + d.NamePrefix + "-analytics"
}

// ServiceAccountID returns the account id (the part before @) for one of the
// deployment's service accounts.
func (d *Deployment) ServiceAccountID(suffix string) string {
	return d.NamePrefix + "-" + suffix
}
