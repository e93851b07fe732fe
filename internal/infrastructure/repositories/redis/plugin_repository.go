package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

// RedisPluginRepository stores the catalog as an ordered list of paths plus
// a hash of descriptors, and the blacklist as a set.
type RedisPluginRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisPluginRepository keys everything under prefix.
func NewRedisPluginRepository(client *redis.Client, prefix string) ports.PluginRepository {
	return &RedisPluginRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisPluginRepository) orderKey() string {
	return r.prefix + "plugins:order"
}

func (r *RedisPluginRepository) catalogKey() string {
	return r.prefix + "plugins:catalog"
}

func (r *RedisPluginRepository) blacklistKey() string {
	return r.prefix + "plugins:blacklist"
}

func (r *RedisPluginRepository) AddPlugin(ctx context.Context, plugin domain.PluginDescriptor) error {
	data, err := json.Marshal(plugin)
	if err != nil {
		return fmt.Errorf("failed to marshal plugin: %w", err)
	}

	added, err := r.client.HSet(ctx, r.catalogKey(), plugin.Path, data).Result()
	if err != nil {
		return fmt.Errorf("failed to store plugin in Redis: %w", err)
	}
	if added == 0 {
		return nil
	}
	if err := r.client.RPush(ctx, r.orderKey(), plugin.Path).Err(); err != nil {
		return fmt.Errorf("failed to index plugin: %w", err)
	}
	return nil
}

func (r *RedisPluginRepository) RemovePlugin(ctx context.Context, path string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.catalogKey(), path)
		pipe.LRem(ctx, r.orderKey(), 0, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove plugin from Redis: %w", err)
	}
	return nil
}

// ListPlugins returns plugins in discovery order.
func (r *RedisPluginRepository) ListPlugins(ctx context.Context) ([]domain.PluginDescriptor, error) {
	paths, err := r.client.LRange(ctx, r.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins from Redis: %w", err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	values, err := r.client.HMGet(ctx, r.catalogKey(), paths...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get plugins from Redis: %w", err)
	}

	plugins := make([]domain.PluginDescriptor, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without descriptor
			continue
		}
		var plugin domain.PluginDescriptor
		if err := json.Unmarshal([]byte(raw), &plugin); err != nil {
			return nil, fmt.Errorf("failed to unmarshal plugin %s: %w", paths[i], err)
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

func (r *RedisPluginRepository) ClearPlugins(ctx context.Context) error {
	if err := r.client.Del(ctx, r.orderKey(), r.catalogKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear plugins in Redis: %w", err)
	}
	return nil
}

func (r *RedisPluginRepository) AddToBlacklist(ctx context.Context, path string) error {
	if err := r.client.SAdd(ctx, r.blacklistKey(), path).Err(); err != nil {
		return fmt.Errorf("failed to add %s to blacklist: %w", path, err)
	}
	return nil
}

func (r *RedisPluginRepository) IsBlacklisted(ctx context.Context, path string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.blacklistKey(), path).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return ok, nil
}

func (r *RedisPluginRepository) Blacklist(ctx context.Context) ([]string, error) {
	paths, err := r.client.SMembers(ctx, r.blacklistKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read blacklist: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
