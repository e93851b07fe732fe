package ports

import (
	"context"

	"jamlink/internal/core/domain"
)

type SettingsRepository interface {
	Save(ctx context.Context, snapshot domain.InputsSnapshot) error
	// Load returns domain.ErrSnapshotNotFound when nothing was saved yet.
	Load(ctx context.Context) (domain.InputsSnapshot, error)
}

type PluginRepository interface {
	AddPlugin(ctx context.Context, plugin domain.PluginDescriptor) error
	RemovePlugin(ctx context.Context, path string) error
	ListPlugins(ctx context.Context) ([]domain.PluginDescriptor, error)
	ClearPlugins(ctx context.Context) error
	AddToBlacklist(ctx context.Context, path string) error
	IsBlacklisted(ctx context.Context, path string) (bool, error)
	Blacklist(ctx context.Context) ([]string, error)
}
