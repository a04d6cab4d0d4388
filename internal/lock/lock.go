// Package lock provides the mutual exclusion used to run at most one
// notification sweep at a time, within a process or across replicas.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker acquires named leases. TryLock never blocks: it reports false when
// another holder owns the name. The returned release func is safe to call
// once the work is done.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// LocalLocker is an in-process Locker for single-replica deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker creates a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[name]; ok && now.Before(until) {
		return nil, false, nil
	}
	until := now.Add(ttl)
	l.held[name] = until

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		// A lease that expired and was re-acquired belongs to someone else.
		if l.held[name].Equal(until) {
			delete(l.held, name)
		}
	}, true, nil
}

// releaseScript deletes the key only if it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker uses SET NX with an expiry so only one replica holds a lease.
type RedisLocker struct {
	rdb     *redis.Client
	prefix  string
	release *redis.Script
}

// NewRedisLocker creates a RedisLocker. Keys are stored as prefix + name.
func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "taskflow:lock:"
	}
	return &RedisLocker{rdb: rdb, prefix: prefix, release: redis.NewScript(releaseScript)}
}

func (l *RedisLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	key := l.prefix + name
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.release.Run(ctx, l.rdb, []string{key}, token).Err()
	}, true, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Cooldown enforces a minimum interval between actions sharing a key, across
// replicas. Keys expire on their own; there is no release.
type Cooldown struct {
	rdb    *redis.Client
	prefix string
}

// NewCooldown creates a Redis-backed Cooldown.
func NewCooldown(rdb *redis.Client, prefix string) *Cooldown {
	if prefix == "" {
		prefix = "taskflow:cooldown:"
	}
	return &Cooldown{rdb: rdb, prefix: prefix}
}

// Acquire reports true when no action for key happened within ttl, and
// starts a new window.
func (c *Cooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.prefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cooldown %s: %w", key, err)
	}
	return ok, nil
}
