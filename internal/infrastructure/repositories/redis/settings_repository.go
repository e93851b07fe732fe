package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
)

type RedisSettingsRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisSettingsRepository stores the snapshot as one JSON value.
func NewRedisSettingsRepository(client *redis.Client, prefix string) ports.SettingsRepository {
	return &RedisSettingsRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisSettingsRepository) snapshotKey() string {
	return r.prefix + "inputs:snapshot"
}

func (r *RedisSettingsRepository) Save(ctx context.Context, snapshot domain.InputsSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.snapshotKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store inputs snapshot in Redis: %w", err)
	}
	return nil
}

// Load maps a missing key to ErrSnapshotNotFound.
func (r *RedisSettingsRepository) Load(ctx context.Context) (domain.InputsSnapshot, error) {
	data, err := r.client.Get(ctx, r.snapshotKey()).Bytes()
	if err == redis.Nil {
		return domain.InputsSnapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.InputsSnapshot{}, fmt.Errorf("failed to get inputs snapshot from Redis: %w", err)
	}

	var snapshot domain.InputsSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.InputsSnapshot{}, fmt.Errorf("failed to unmarshal inputs snapshot: %w", err)
	}
	return snapshot, nil
}
