package memory

import (
	"context"
	"sync"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

type MemorySettingsRepository struct {
	snapshot *domain.InputsSnapshot
	mu       sync.RWMutex
}

// NewMemorySettingsRepository keeps the snapshot for the life of the process.
func NewMemorySettingsRepository() ports.SettingsRepository {
	return &MemorySettingsRepository{}
}

func (r *MemorySettingsRepository) Save(ctx context.Context, snapshot domain.InputsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := copySnapshot(snapshot)
	r.snapshot = &copied
	return nil
}

// Load returns ErrSnapshotNotFound until something is saved.
func (r *MemorySettingsRepository) Load(ctx context.Context) (domain.InputsSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.snapshot == nil {
		return domain.InputsSnapshot{}, domain.ErrSnapshotNotFound
	}
	return copySnapshot(*r.snapshot), nil
}

func copySnapshot(s domain.InputsSnapshot) domain.InputsSnapshot {
	out := domain.InputsSnapshot{Groups: make([]domain.GroupSnapshot, len(s.Groups))}
	for i, g := range s.Groups {
		out.Groups[i] = domain.GroupSnapshot{
			Name:        g.Name,
			Subchannels: append([]domain.InputSelection(nil), g.Subchannels...),
		}
	}
	return out
}
