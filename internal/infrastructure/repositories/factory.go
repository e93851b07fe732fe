package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jamlink/internal/core/ports"
	"jamlink/internal/infrastructure/repositories/memory"
	redisrepo "jamlink/internal/infrastructure/repositories/redis"
	"jamlink/pkg/config"
	"jamlink/pkg/distributed"
	"jamlink/pkg/retry"
)

const settingsLockTTL = 30 * time.Second

// RepositoryFactory creates repositories, falling back to memory when Redis
// is disabled or unreachable. Several instances (plugin copies inside one
// DAW) may share a store; only the owner of the settings lock persists the
// inputs snapshot there.
type RepositoryFactory struct {
	useRedis     bool
	redisClient  *redis.Client
	prefix       string
	settingsLock *distributed.Lock
	logger       *zap.SugaredLogger
}

// NewRepositoryFactory falls back to memory repositories when Redis is
// disabled or unreachable.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		prefix:   cfg.Redis.KeyPrefix,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxDelay = time.Second

		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientOptions{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Retry:     retryCfg,
		}, logger)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			factory.acquireSettingsLock(ctx)
			logger.Info("Using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("Using memory repositories")
	}

	return factory
}

func (f *RepositoryFactory) acquireSettingsLock(ctx context.Context) {
	lock := distributed.NewLockManager(f.redisClient, f.prefix).NewLock("settings", settingsLockTTL)
	ok, err := lock.TryLock(ctx)
	switch {
	case err != nil:
		f.logger.Warnw("Failed to acquire settings lock, inputs will not be persisted", "error", err)
	case !ok:
		f.logger.Infow("Settings owned by another instance, inputs will not be persisted", "key", lock.Key())
	default:
		f.settingsLock = lock
	}
}

// OwnsSettings reports whether this instance persists inputs to Redis.
func (f *RepositoryFactory) OwnsSettings() bool {
	return f.useRedis && f.settingsLock != nil
}

func (f *RepositoryFactory) CreateSettingsRepository() ports.SettingsRepository {
	if f.OwnsSettings() {
		return redisrepo.NewRedisSettingsRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemorySettingsRepository()
}

func (f *RepositoryFactory) CreatePluginRepository() ports.PluginRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPluginRepository(f.redisClient, f.prefix)
	}
	return memory.NewMemoryPluginRepository()
}

// RedisClient is nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	if f.settingsLock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := f.settingsLock.Unlock(ctx); err != nil {
			f.logger.Warnw("Failed to release settings lock", "error", err)
		}
		cancel()
		f.settingsLock = nil
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis. It is a no-op for memory storage.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
