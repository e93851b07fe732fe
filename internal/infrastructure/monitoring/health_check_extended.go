package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jamlink/internal/core/ports"
	"jamlink/pkg/dispatch"
)

// AddRedisCheck pings client.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// AddDispatcherCheck fails when the control goroutine does not run a no-op
// task within the timeout.
func (h *HealthChecker) AddDispatcherCheck(d *dispatch.Dispatcher, interval, timeout time.Duration) {
	h.AddCheck("control_thread", func(ctx context.Context) (bool, error) {
		if err := d.Do(ctx, func(context.Context) error { return nil }); err != nil {
			return false, fmt.Errorf("control thread unresponsive (%d pending): %w", d.Pending(), err)
		}
		return true, nil
	}, interval, timeout)
}

func (h *HealthChecker) AddPluginStoreCheck(repo ports.PluginRepository, interval, timeout time.Duration) {
	h.AddCheck("plugin_store", func(ctx context.Context) (bool, error) {
		if _, err := repo.Blacklist(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// IsReady is true when every registered check passes.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status == "healthy"
}
