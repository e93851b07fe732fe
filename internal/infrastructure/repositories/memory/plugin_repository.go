package memory

import (
	"context"
	"sort"
	"sync"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// MemoryPluginRepository keeps plugins in discovery order.
type MemoryPluginRepository struct {
	plugins   []domain.PluginDescriptor
	blacklist map[string]struct{}
	mu        sync.RWMutex
}

func NewMemoryPluginRepository() ports.PluginRepository {
	return &MemoryPluginRepository{
		blacklist: make(map[string]struct{}),
	}
}

func (r *MemoryPluginRepository) AddPlugin(ctx context.Context, plugin domain.PluginDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.plugins {
		if p.Path == plugin.Path {
			r.plugins[i] = plugin
			return nil
		}
	}
	r.plugins = append(r.plugins, plugin)
	return nil
}

func (r *MemoryPluginRepository) RemovePlugin(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.plugins {
		if p.Path == path {
			r.plugins = append(r.plugins[:i], r.plugins[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryPluginRepository) ListPlugins(ctx context.Context) ([]domain.PluginDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.PluginDescriptor(nil), r.plugins...), nil
}

func (r *MemoryPluginRepository) ClearPlugins(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = nil
	return nil
}

func (r *MemoryPluginRepository) AddToBlacklist(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blacklist[path] = struct{}{}
	return nil
}

func (r *MemoryPluginRepository) IsBlacklisted(ctx context.Context, path string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.blacklist[path]
	return ok, nil
}

func (r *MemoryPluginRepository) Blacklist(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.blacklist))
	for path := range r.blacklist {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}
