// Package state holds the durable record of a deployment run.
//
// A Deployment is owned exclusively by the orchestrator: it is persisted
// after every step transition and loaded once when resuming. Step status
// moves pending -> in_progress -> completed|failed, and a completed step is
// never re-entered on resume.
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vantage-deploy/vantage/internal/config"
)

// Version tags the persisted document format. Bump on incompatible changes.
const Version = "1"

// StepState is the lifecycle state of a single pipeline step.
type StepState string

const (
	StepPending    StepState = "pending"
	StepInProgress StepState = "in_progress"
	StepCompleted  StepState = "completed"
	StepFailed     StepState = "failed"
)

// StepStatus records the outcome of one pipeline step.
type StepStatus struct {
	State       StepState         `yaml:"state"`
	StartedAt   *time.Time        `yaml:"startedAt,omitempty"`
	CompletedAt *time.Time        `yaml:"completedAt,omitempty"`
	Error       string            `yaml:"error,omitempty"`
	// Resources maps identifier names (e.g. "serviceAccountEmail",
	// "gatewayURL") to the values this step produced.
	Resources map[string]string `yaml:"resources,omitempty"`
}

// Deployment is the durable record of one run.
type Deployment struct {
	Version   string                 `yaml:"version"`
	ID        string                 `yaml:"id"`
	ProjectID string                 `yaml:"projectId"`
	Region    string                 `yaml:"region"`
	StartedAt time.Time              `yaml:"startedAt"`
	UpdatedAt time.Time              `yaml:"updatedAt"`
	Config    *config.Deployment     `yaml:"config"`
	Steps     map[string]*StepStatus `yaml:"steps"`
}

// NewDeployment creates the record for a fresh run.
func NewDeployment(cfg *config.Deployment) *Deployment {
	now := time.Now().UTC()
	return &Deployment{
		Version:   Version,
		ID:        uuid.NewString(),
		ProjectID: cfg.ProjectID,
		Region:    cfg.Region,
		StartedAt: now,
		UpdatedAt: now,
		Config:    cfg,
		Steps:     make(map[string]*StepStatus),
	}
}

// Validate checks a loaded record before a resume is allowed to mutate it.
func (d *Deployment) Validate() error {
	if d.Version != Version {
		return fmt.Errorf("deployment %s has state version %q, this build expects %q", d.ID, d.Version, Version)
	}
	if d.ID == "" {
		return fmt.Errorf("deployment record is missing an id")
	}
	if d.Config == nil {
		return fmt.Errorf("deployment %s has no input config", d.ID)
	}
	if d.ProjectID != d.Config.ProjectID {
		return fmt.Errorf("deployment %s project %q does not match its config project %q",
			d.ID, d.ProjectID, d.Config.ProjectID)
	}
	return nil
}

// Step returns the status record for name, creating a pending one if absent.
func (d *Deployment) Step(name string) *StepStatus {
	if d.Steps == nil {
		d.Steps = make(map[string]*StepStatus)
	}
	s, ok := d.Steps[name]
	if !ok {
		s = &StepStatus{State: StepPending}
		d.Steps[name] = s
	}
	return s
}

// Completed reports whether the named step already finished successfully.
func (d *Deployment) Completed(name string) bool {
	s, ok := d.Steps[name]
	return ok && s.State == StepCompleted
}

// MarkInProgress transitions a step to in_progress.
// Completed steps must never be re-entered.
func (d *Deployment) MarkInProgress(name string) error {
	s := d.Step(name)
	if s.State == StepCompleted {
		return fmt.Errorf("step %q is already completed and must not be re-entered", name)
	}
	now := time.Now().UTC()
	s.State = StepInProgress
	s.StartedAt = &now
	s.Error = ""
	d.UpdatedAt = now
	return nil
}

// MarkCompleted transitions a step to completed, recording produced resources.
func (d *Deployment) MarkCompleted(name string, resources map[string]string) error {
	s := d.Step(name)
	if s.State != StepInProgress {
		return fmt.Errorf("step %q cannot complete from state %q", name, s.State)
	}
	now := time.Now().UTC()
	s.State = StepCompleted
	s.CompletedAt = &now
	if len(resources) > 0 {
		if s.Resources == nil {
			s.Resources = make(map[string]string, len(resources))
		}
		for k, v := range resources {
			s.Resources[k] = v
		}
	}
	d.UpdatedAt = now
	return nil
}

// MarkFailed transitions a step to failed, keeping the error text.
func (d *Deployment) MarkFailed(name string, stepErr error) error {
	s := d.Step(name)
	if s.State != StepInProgress {
		return fmt.Errorf("step %q cannot fail from state %q", name, s.State)
	}
	now := time.Now().UTC()
	s.State = StepFailed
	s.CompletedAt = &now
	if stepErr != nil {
		s.Error = stepErr.Error()
	}
	d.UpdatedAt = now
	return nil
}

// Resource looks up a produced identifier across all completed steps.
func (d *Deployment) Resource(key string) (string, bool) {
	for _, s := range d.Steps {
		if s.State != StepCompleted {
			continue
		}
		if v, ok := s.Resources[key]; ok {
			return v, true
		}
	}
	return "", false
}
