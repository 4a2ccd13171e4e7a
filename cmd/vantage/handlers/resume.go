package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantage-deploy/vantage/internal/state"
)

// Resume continues a previously checkpointed deployment. Completed steps are
// never replayed; the pipeline picks up at the first step that is not
// completed.
func Resume(ctx context.Context, configPath, id string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, locker, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	d, err := store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			ids, listErr := store.List(ctx)
			if listErr == nil && len(ids) > 0 {
				return fmt.Errorf("deployment %s not found; known deployments: %v", id, ids)
			}
		}
		return fmt.Errorf("failed to load deployment %s: %w", id, err)
	}
	if err := d.Validate(); err != nil {
		return err
	}

	if err := locker.Acquire(ctx, d.ID); err != nil {
		return err
	}
	defer locker.Release(d.ID)

	fmt.Printf("Resuming deployment %s in project %s\n", d.ID, d.ProjectID)

	// The persisted config is authoritative: input is immutable once a run
	// starts, so the file on disk only supplies the state backend settings.
	pc, err := buildContext(ctx, d.Config, d, store)
	if err != nil {
		return err
	}
	return runPipeline(pc)
}
