package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// AttemptLimiter counts failed PIN entries per key inside a sliding lockout
// window. The engine keys it by custody record.
type AttemptLimiter interface {
	Failures(ctx context.Context, key string) (int, error)
	RecordFailure(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// MemoryAttemptLimiter keeps counters in process memory
type MemoryAttemptLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]*attemptEntry
}

type attemptEntry struct {
	count   int
	expires time.Time
}

// NewMemoryAttemptLimiter creates an in-process limiter whose counters reset
// window after the first failure.
func NewMemoryAttemptLimiter(window time.Duration) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{
		window:  window,
		now:     time.Now,
		entries: make(map[string]*attemptEntry),
	}
}

func (l *MemoryAttemptLimiter) live(key string) *attemptEntry {
	e, ok := l.entries[key]
	if !ok {
		return nil
	}
	if !l.now().Before(e.expires) {
		delete(l.entries, key)
		return nil
	}
	return e
}

// Failures returns the current failure count for key
func (l *MemoryAttemptLimiter) Failures(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.live(key); e != nil {
		return e.count, nil
	}
	return 0, nil
}

// RecordFailure increments the counter for key and returns the new count
func (l *MemoryAttemptLimiter) RecordFailure(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.live(key)
	if e == nil {
		e = &attemptEntry{expires: l.now().Add(l.window)}
		l.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Reset clears the counter for key
func (l *MemoryAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

const attemptPrefix = "kidcheck:pin_failures:"

// RedisAttemptLimiter shares counters between server replicas
type RedisAttemptLimiter struct {
	rdb    goredis.UniversalClient
	window time.Duration
}

// NewRedisAttemptLimiter creates a limiter backed by rdb
func NewRedisAttemptLimiter(rdb goredis.UniversalClient, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{rdb: rdb, window: window}
}

// Failures returns the current failure count for key
func (l *RedisAttemptLimiter) Failures(ctx context.Context, key string) (int, error) {
	n, err := l.rdb.Get(ctx, attemptPrefix+key).Int()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt counter: %w", err)
	}
	return n, nil
}

// RecordFailure increments the counter for key and returns the new count.
// The window starts with the first failure.
func (l *RedisAttemptLimiter) RecordFailure(ctx context.Context, key string) (int, error) {
	n, err := l.rdb.Incr(ctx, attemptPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, attemptPrefix+key, l.window).Err(); err != nil {
			return int(n), fmt.Errorf("failed to set attempt window: %w", err)
		}
	}
	return int(n), nil
}

// Reset clears the counter for key
func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, attemptPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt counter: %w", err)
	}
	return nil
}
