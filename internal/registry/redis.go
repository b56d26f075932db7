package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "lichess-bridge:active:"

// compare-and-delete so a stale release never clears a newer holder
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis keeps the slot in Redis so several bridge processes playing under one
// account share it. The TTL bounds how long a crashed holder blocks the slot.
// Redis failures fail safe: acquire reports false and occupancy reports true.
type Redis struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedis(rdb *redis.Client, account string, ttl time.Duration, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		rdb:    rdb,
		key:    keyPrefix + strings.ToLower(strings.TrimSpace(account)),
		ttl:    ttl,
		logger: logger,
	}
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *Redis) TryAcquire(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	ok, err := r.rdb.SetNX(ctx, r.key, id, r.ttl).Result()
	if err != nil {
		r.logger.Error("registry_acquire_failed", zap.String("game_id", id), zap.Error(err))
		return false
	}
	return ok
}

func (r *Redis) Release(ctx context.Context, id string) {
	if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, id).Err(); err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("registry_release_failed", zap.String("game_id", id), zap.Error(err))
	}
}

func (r *Redis) IsOccupied(ctx context.Context) bool {
	n, err := r.rdb.Exists(ctx, r.key).Result()
	if err != nil {
		r.logger.Error("registry_read_failed", zap.Error(err))
		return true
	}
	return n > 0
}

func (r *Redis) Current(ctx context.Context) string {
	v, err := r.rdb.Get(ctx, r.key).Result()
	if err != nil {
		return ""
	}
	return v
}
