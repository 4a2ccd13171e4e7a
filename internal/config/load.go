package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up when none is specified.
const DefaultFile = "vantage.yaml"

// LoadFile reads and parses the deployment configuration from a YAML file.
func LoadFile(path string) (*Deployment, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Deployment
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func (d *Deployment) ApplyDefaults() {
	if d.Region == "" {
		d.Region = "us-central1"
	}
	if d.NamePrefix == "" {
		d.NamePrefix = "vantage"
	}
	if d.AIMode == "" {
		d.AIMode = AIModeVertex
	}
	if d.Devices.Port == 0 {
		d.Devices.Port = 443
	}
	if d.Devices.ScanConcurrency == 0 {
		d.Devices.ScanConcurrency = 20
	}
	if d.Terraform.Binary == "" {
		d.Terraform.Binary = "terraform"
	}
	if d.State.Dir == "" {
		d.State.Dir = ".vantage/state"
	}
}

// WriteFile marshals the configuration to a YAML file.
func (d *Deployment) WriteFile(path string) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
