// Package ratelimit throttles login attempts with a fixed window counter.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Reset(ctx context.Context, key string) error
}

// LoginKey scopes the counter to one client address and one account email.
func LoginKey(clientIP, email string) string {
	return clientIP + "|" + strings.ToLower(strings.TrimSpace(email))
}

// Noop allows everything. Used when no Redis address is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (Decision, error) { return Decision{Allowed: true}, nil }
func (Noop) Reset(context.Context, string) error             { return nil }

// incrScript increments the window counter, starting the window on the
// first hit, and returns {count, remaining ttl in ms}.
var incrScript = redis.NewScript(1, `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter keeps counters in Redis so every replica shares them.
type RedisLimiter struct {
	pool        *redis.Pool
	prefix      string
	maxAttempts int
	window      time.Duration
}

// NewPool builds a redigo pool for addr.
func NewPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisLimiter(pool *redis.Pool, maxAttempts int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{pool: pool, prefix: "starauth:login:", maxAttempts: maxAttempts, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}
	defer conn.Close()

	vals, err := redis.Int64s(incrScript.Do(conn, l.prefix+key, l.window.Milliseconds()))
	if err != nil {
		return Decision{}, fmt.Errorf("redis error: %w", err)
	}
	if len(vals) != 2 {
		return Decision{}, fmt.Errorf("redis error: unexpected reply %v", vals)
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if ttl < 0 {
		ttl = l.window
	}

	if count > l.maxAttempts {
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxAttempts - count}, nil
}

// Reset clears the counter, typically after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Do("DEL", l.prefix+key); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Do("PING")
	return err
}
