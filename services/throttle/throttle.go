// Package throttle limits failed login attempts per key within a time window.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/auth"
)

const keyPrefix = "login_attempts:"

// New returns a Redis-backed throttle when redis.url is set, an in-memory one otherwise.
// It returns nil when login throttling is disabled.
func New(conf *core.Config) (auth.LoginThrottle, error) {
	maxAttempts, window := conf.Auth.MaxLoginAttempts, conf.Auth.LoginAttemptWindow
	if maxAttempts <= 0 {
		return nil, nil
	}
	if conf.RedisURL == "" {
		return NewMemory(maxAttempts, window), nil
	}
	opts, err := redis.ParseURL(conf.RedisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return NewRedis(redis.NewClient(opts), maxAttempts, window), nil
}

type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ auth.LoginThrottle = (*Redis)(nil)

func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{client: client, limit: limit, window: window}
}

func (r *Redis) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Get(ctx, keyPrefix+key).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "reading attempts")
	}
	return n >= r.limit, nil
}

// Fail counts a failed attempt. The window starts at the first failure.
func (r *Redis) Fail(ctx context.Context, key string) error {
	k := keyPrefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return errors.Wrap(err, "recording attempt")
	}
	if n == 1 {
		return errors.Wrap(r.client.Expire(ctx, k, r.window).Err(), "setting attempts window")
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, keyPrefix+key).Err(), "resetting attempts")
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type attempts struct {
	count   int
	resetAt time.Time
}

type Memory struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	keys      map[string]attempts
	nextSweep time.Time
	now       func() time.Time
}

var _ auth.LoginThrottle = (*Memory)(nil)

func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{limit: limit, window: window, keys: make(map[string]attempts), now: time.Now}
}

func (m *Memory) get(key string) attempts {
	a, ok := m.keys[key]
	if ok && !m.now().Before(a.resetAt) {
		delete(m.keys, key)
		return attempts{}
	}
	return a
}

func (m *Memory) Blocked(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key).count >= m.limit, nil
}

// sweep drops expired keys at most once per window.
func (m *Memory) sweep() {
	now := m.now()
	if now.Before(m.nextSweep) {
		return
	}
	for key, a := range m.keys {
		if !now.Before(a.resetAt) {
			delete(m.keys, key)
		}
	}
	m.nextSweep = now.Add(m.window)
}

func (m *Memory) Fail(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	a := m.get(key)
	if a.count == 0 {
		a.resetAt = m.now().Add(m.window)
	}
	a.count++
	m.keys[key] = a
	return nil
}

func (m *Memory) Reset(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
