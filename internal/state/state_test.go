package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vantage-deploy/vantage/internal/config"
)

func testConfig() *config.Deployment {
	cfg := &config.Deployment{ProjectID: "acme-vision-prod"}
	cfg.ApplyDefaults()
	return cfg
}

func TestDeployment_Transitions(t *testing.T) {
	t.Parallel()
	d := NewDeployment(testConfig())

	if err := d.MarkInProgress("apis-enabled"); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}
	if got := d.Step("apis-enabled").State; got != StepInProgress {
		t.Errorf("Expected in_progress, got %q", got)
	}

	if err := d.MarkCompleted("apis-enabled", map[string]string{"api": "iam.googleapis.com"}); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}
	if got := d.Step("apis-enabled").State; got != StepCompleted {
		t.Errorf("Expected completed, got %q", got)
	}

	// Completed steps must never be re-entered.
	if err := d.MarkInProgress("apis-enabled"); err == nil {
		t.Error("Expected error re-entering completed step")
	}
}

func TestDeployment_InvalidTransitions(t *testing.T) {
	t.Parallel()
	d := NewDeployment(testConfig())

	// pending -> completed is not a legal move.
	if err := d.MarkCompleted("storage", nil); err == nil {
		t.Error("Expected error completing a pending step")
	}
	if err := d.MarkFailed("storage", errors.New("x")); err == nil {
		t.Error("Expected error failing a pending step")
	}
}

func TestDeployment_FailedStepKeepsError(t *testing.T) {
	t.Parallel()
	d := NewDeployment(testConfig())

	_ = d.MarkInProgress("service-accounts")
	if err := d.MarkFailed("service-accounts", errors.New("iam quota exceeded")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	s := d.Step("service-accounts")
	if s.State != StepFailed {
		t.Errorf("Expected failed, got %q", s.State)
	}
	if s.Error != "iam quota exceeded" {
		t.Errorf("Expected error text preserved, got %q", s.Error)
	}

	// A failed step may be re-entered on resume.
	if err := d.MarkInProgress("service-accounts"); err != nil {
		t.Errorf("Expected failed step to be re-enterable: %v", err)
	}
	if s.Error != "" {
		t.Error("Expected error text cleared on re-entry")
	}
}

func TestDeployment_ResourceLookup(t *testing.T) {
	t.Parallel()
	d := NewDeployment(testConfig())

	_ = d.MarkInProgress("service-accounts")
	_ = d.MarkCompleted("service-accounts", map[string]string{"deviceAuthSA": "sa@p.iam.gserviceaccount.com"})

	_ = d.MarkInProgress("api-gateway")
	_ = d.MarkFailed("api-gateway", errors.New("boom"))
	d.Step("api-gateway").Resources = map[string]string{"gatewayURL": "https://gw"}

	if v, ok := d.Resource("deviceAuthSA"); !ok || v != "sa@p.iam.gserviceaccount.com" {
		t.Errorf("Expected resource from completed step, got %q (%v)", v, ok)
	}
	// Resources on failed steps are not trusted.
	if _, ok := d.Resource("gatewayURL"); ok {
		t.Error("Resource lookup must ignore non-completed steps")
	}
}

func TestDeployment_Validate(t *testing.T) {
	t.Parallel()
	d := NewDeployment(testConfig())
	if err := d.Validate(); err != nil {
		t.Fatalf("Fresh deployment should validate: %v", err)
	}

	bad := NewDeployment(testConfig())
	bad.Version = "0"
	if err := bad.Validate(); err == nil {
		t.Error("Expected version mismatch error")
	}

	mismatched := NewDeployment(testConfig())
	mismatched.ProjectID = "other-project-id"
	if err := mismatched.Validate(); err == nil {
		t.Error("Expected project mismatch error")
	}
}

func TestFileStore_SaveLoadList(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	ctx := context.Background()
	d := NewDeployment(testConfig())
	_ = d.MarkInProgress("apis-enabled")
	_ = d.MarkCompleted("apis-enabled", map[string]string{"api": "iam.googleapis.com"})

	if err := store.Save(ctx, d); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx, d.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != d.ID || loaded.ProjectID != d.ProjectID {
		t.Error("Loaded deployment differs from saved")
	}
	if !loaded.Completed("apis-enabled") {
		t.Error("Step status lost across save/load")
	}
	if v, ok := loaded.Resource("api"); !ok || v != "iam.googleapis.com" {
		t.Errorf("Resources lost across save/load: %q (%v)", v, ok)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != d.ID {
		t.Errorf("Unexpected ids: %v", ids)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Load(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_LockExcludesSecondRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := first.Acquire(ctx, "dep-1"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	defer first.Release("dep-1")

	second, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	err = second.Acquire(lockCtx, "dep-1")
	if err == nil {
		second.Release("dep-1")
		t.Fatal("Expected second acquire on the same deployment id to fail")
	}
}
