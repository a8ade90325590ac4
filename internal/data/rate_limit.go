package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PuckRelay/internal/biz"
	"PuckRelay/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRateLimitKeyTTL keeps a hit record a little past the next quota reset.
	DefaultRateLimitKeyTTL = 48 * time.Hour

	storeRedis  = "redis"
	storeMySQL  = "mysql"
	storeMemory = "memory"
)

// clearIfDayScript deletes the key only when it still holds the expected day.
// KEYS[1] = hit_date key, ARGV[1] = day
var clearIfDayScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRateLimitRepo implements biz.RateLimitRepo on Redis.
// Following Kratos v2 DDD architecture, interface is defined in biz layer.
type RedisRateLimitRepo struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *log.Helper
}

// NewRedisRateLimitRepo creates a Redis backed rate limit repository.
func NewRedisRateLimitRepo(rdb *redis.Client, ttl time.Duration, logger log.Logger) *RedisRateLimitRepo {
	if ttl <= 0 {
		ttl = DefaultRateLimitKeyTTL
	}
	return &RedisRateLimitRepo{
		rdb:    rdb,
		ttl:    ttl,
		logger: log.NewHelper(logger),
	}
}

// GetHitDate returns the stored hit day of a provider.
func (r *RedisRateLimitRepo) GetHitDate(ctx context.Context, provider string) (string, bool, error) {
	day, err := r.rdb.Get(ctx, hitDateKey(provider)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get hit date: %w", err)
	}
	return day, true, nil
}

// SetHitDate stores the hit day with a TTL so orphaned keys expire on their own.
func (r *RedisRateLimitRepo) SetHitDate(ctx context.Context, provider, day string) error {
	if err := r.rdb.Set(ctx, hitDateKey(provider), day, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set hit date: %w", err)
	}
	return nil
}

// ClearHitDate atomically deletes the record when it still holds day.
func (r *RedisRateLimitRepo) ClearHitDate(ctx context.Context, provider, day string) (bool, error) {
	n, err := clearIfDayScript.Run(ctx, r.rdb, []string{hitDateKey(provider)}, day).Int()
	if err != nil {
		return false, fmt.Errorf("failed to clear hit date: %w", err)
	}
	return n > 0, nil
}

// DeleteHitDate removes the record unconditionally.
func (r *RedisRateLimitRepo) DeleteHitDate(ctx context.Context, provider string) error {
	if err := r.rdb.Del(ctx, hitDateKey(provider)).Err(); err != nil {
		return fmt.Errorf("failed to delete hit date: %w", err)
	}
	return nil
}

// hitDateKey generates Redis key for a provider's hit date.
// Format: ratelimit:{provider}:hit_date
func hitDateKey(provider string) string {
	return fmt.Sprintf("ratelimit:%s:hit_date", provider)
}

// NewRateLimitRepo selects the configured rate limit store.
// A selected backend that is unavailable falls back to the in-memory store,
// which keeps the pipeline working but forgets hits across restarts.
func NewRateLimitRepo(c *conf.Data, d *Data, logger log.Logger) biz.RateLimitRepo {
	helper := log.NewHelper(logger)
	rdb, db := d.GetRedisClient(), d.GetDB()

	store := storeRedis
	ttl := DefaultRateLimitKeyTTL
	if c != nil && c.RateLimit != nil {
		if c.RateLimit.Store != "" {
			store = c.RateLimit.Store
		}
		if c.RateLimit.KeyTTL > 0 {
			ttl = c.RateLimit.KeyTTL
		}
	}

	switch store {
	case storeRedis:
		if rdb != nil {
			helper.Infow("msg", "rate limit store selected", "store", storeRedis)
			return NewRedisRateLimitRepo(rdb, ttl, logger)
		}
	case storeMySQL:
		if db != nil {
			helper.Infow("msg", "rate limit store selected", "store", storeMySQL)
			return NewMySQLRateLimitRepo(db, logger)
		}
	case storeMemory:
		return NewMemoryRateLimitRepo()
	}

	helper.Warnw("msg", "rate limit store unavailable, using memory", "store", store)
	return NewMemoryRateLimitRepo()
}
