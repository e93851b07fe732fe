package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("lock is not held by this owner")

var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Lock is an ownership lease in Redis. While held it is renewed at half
// its TTL until Unlock or until the context passed to TryLock is done.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration

	mu      sync.Mutex
	held    bool
	stopped chan struct{}
}

// NewLock does not acquire anything; call TryLock.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		value:  ownerValue(),
		ttl:    ttl,
	}
}

func ownerValue() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (l *Lock) Key() string {
	return l.key
}

// TryLock acquires the lease without waiting.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		return false, nil
	}

	l.held = true
	l.stopped = make(chan struct{})
	go l.renew(ctx, l.stopped)
	return true, nil
}

// Held reports whether this owner still holds the lease.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	current, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == l.value, nil
}

// Unlock releases the lock only if this holder still owns it.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	close(l.stopped)

	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Renew extends the lease once; it reports false when another owner took over.
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Lock) renew(ctx context.Context, stopped <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ok, err := l.Renew(ctx); err != nil || !ok {
				return
			}
		case <-stopped:
			return
		case <-ctx.Done():
			return
		}
	}
}

type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{
		client: client,
		prefix: prefix,
	}
}

func (lm *LockManager) NewLock(name string, ttl time.Duration) *Lock {
	return NewLock(lm.client, lm.prefix+"lock:"+name, ttl)
}
