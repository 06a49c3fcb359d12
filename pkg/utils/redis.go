package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig controls the counter client. Zero values fall back to short timeouts:
// callers treat Redis as advisory and must not stall a request on it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout time.Duration
	IOTimeout   time.Duration
	PoolSize    int
	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 2 * time.Second
	}
	if out.IOTimeout <= 0 {
		out.IOTimeout = 500 * time.Millisecond
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis builds a client and fails fast when the server does not answer PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// KEYS[1] counter, ARGV[1] window in ms. A key left without a TTL gets one on the
// next hit so a stale counter cannot lock a patient out forever.
var windowIncrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// IncrementWindow atomically bumps key and returns the new count. The window is fixed:
// it opens on the first hit and is not extended by later ones.
func IncrementWindow(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int64, error) {
	switch {
	case rdb == nil:
		return 0, errors.New("redis client is nil")
	case key == "":
		return 0, errors.New("key is required")
	case window <= 0:
		return 0, errors.New("window must be > 0")
	}
	return windowIncrScript.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64()
}
