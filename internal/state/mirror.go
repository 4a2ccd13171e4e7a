package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// MirrorStore checkpoints to a primary store and mirrors every save to a
// secondary one, typically the S3 backend, so a run can be resumed from a
// different machine. Loads fall back to the mirror when the primary has no
// record.
type MirrorStore struct {
	Primary Store
	Mirror  Store
}

func (m *MirrorStore) Save(ctx context.Context, d *Deployment) error {
	if err := m.Primary.Save(ctx, d); err != nil {
		return err
	}
	if err := m.Mirror.Save(ctx, d); err != nil {
		return fmt.Errorf("saved locally but failed to mirror deployment %s: %w", d.ID, err)
	}
	return nil
}

func (m *MirrorStore) Load(ctx context.Context, id string) (*Deployment, error) {
	d, err := m.Primary.Load(ctx, id)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return m.Mirror.Load(ctx, id)
}

func (m *MirrorStore) List(ctx context.Context) ([]string, error) {
	ids, err := m.Primary.List(ctx)
	if err != nil {
		return nil, err
	}
	mirrored, err := m.Mirror.List(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	for _, id := range mirrored {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	sort.Strings(ids)
	return ids, nil
}
