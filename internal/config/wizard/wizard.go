// Package wizard interactively builds a deployment configuration file.
package wizard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/vantage-deploy/vantage/internal/config"
)

var projectIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`)

// regions the gateway and Vertex models are both available in. Free-text
// entry stays possible through the last option.
var regionOptions = []huh.Option[string]{
	huh.NewOption("us-central1 (Iowa)", "us-central1"),
	huh.NewOption("us-east4 (Virginia)", "us-east4"),
	huh.NewOption("europe-west1 (Belgium)", "europe-west1"),
	huh.NewOption("europe-west4 (Netherlands)", "europe-west4"),
	huh.NewOption("asia-northeast1 (Tokyo)", "asia-northeast1"),
}

// Run walks the operator through every question and returns a validated
// deployment config. The caller decides where to write it.
func Run(ctx context.Context) (*config.Deployment, error) {
	cfg := &config.Deployment{}

	if err := runProjectGroup(ctx, cfg); err != nil {
		return nil, err
	}
	if err := runAIModeGroup(ctx, cfg); err != nil {
		return nil, err
	}
	if err := runDevicesGroup(ctx, cfg); err != nil {
		return nil, err
	}
	if err := runLicenseGroup(ctx, cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wizard produced an invalid config: %w", err)
	}
	return cfg, nil
}

func runProjectGroup(ctx context.Context, cfg *config.Deployment) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project ID").
				Description("The Google Cloud project to deploy into").
				Placeholder("my-project-123").
				Value(&cfg.ProjectID).
				Validate(validateProjectID),
			huh.NewSelect[string]().
				Title("Region").
				Description("Where the gateway and storage live").
				Options(regionOptions...).
				Value(&cfg.Region),
			huh.NewInput().
				Title("Name Prefix").
				Description("Short lowercase prefix for every created resource").
				Placeholder("vantage").
				Value(&cfg.NamePrefix),
		).Title("Project"),
	).RunWithContext(ctx)
}

func runAIModeGroup(ctx context.Context, cfg *config.Deployment) error {
	mode := string(config.AIModeVertex)
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("AI Backend").
				Description("Vertex uses the project's own models; Studio uses an AI Studio key").
				Options(
					huh.NewOption("Vertex AI (recommended)", string(config.AIModeVertex)),
					huh.NewOption("AI Studio key", string(config.AIModeStudio)),
				).
				Value(&mode),
		).Title("AI Backend"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}
	cfg.AIMode = config.AIMode(mode)

	if cfg.AIMode == config.AIModeStudio {
		return huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("AI Studio API Key").
					Description("Created at aistudio.google.com").
					EchoMode(huh.EchoModePassword).
					Value(&cfg.WebAPIKey).
					Validate(notEmpty("an API key is required in studio mode")),
			).Title("Studio Credentials"),
		).RunWithContext(ctx)
	}
	return nil
}

func runDevicesGroup(ctx context.Context, cfg *config.Deployment) error {
	port := "443"
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Device Username").
				Description("Shared administrator account on the cameras").
				Placeholder("root").
				Value(&cfg.Devices.Username).
				Validate(notEmpty("a device username is required")),
			huh.NewInput().
				Title("Device Password").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Devices.Password).
				Validate(notEmpty("a device password is required")),
			huh.NewInput().
				Title("Device Port").
				Description("HTTPS port the cameras listen on").
				Value(&port).
				Validate(validatePort),
		).Title("Devices"),
	).RunWithContext(ctx)
	if err != nil {
		return err
	}
	cfg.Devices.Port, _ = strconv.Atoi(port)
	return nil
}

func runLicenseGroup(ctx context.Context, cfg *config.Deployment) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Customer ID (Optional)").
				Description("Ties the deployment to your vendor account").
				Value(&cfg.CustomerID),
			huh.NewInput().
				Title("License Key (Optional)").
				Description("Leave empty to activate licenses later").
				Value(&cfg.LicenseKey),
		).Title("Licensing"),
	).RunWithContext(ctx)
}

func validateProjectID(s string) error {
	if !projectIDRegex.MatchString(s) {
		return fmt.Errorf("project ids are 6-30 lowercase letters, digits, and hyphens, starting with a letter")
	}
	return nil
}

func validatePort(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("enter a port between 1 and 65535")
	}
	return nil
}

func notEmpty(msg string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s", msg)
		}
		return nil
	}
}
