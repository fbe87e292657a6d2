package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/markdave123-py/virtual-teacher/internal/logger"
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard holds keys as Redis locks so that instances behind a load
// balancer agree on which generations are running. The TTL bounds how long a
// crashed holder can block a key.
type RedisGuard struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(log *logger.Logger, addr string, ttl time.Duration) (*RedisGuard, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisGuard{
		log:    log.With("component", "RedisGuard"),
		rdb:    rdb,
		prefix: "lesson:generating:",
		ttl:    ttl,
	}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context, key string) (func(), error) {
	k := g.prefix + key
	token := uuid.NewString()
	ok, err := g.rdb.SetNX(ctx, k, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be cancelled (client gone).
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, g.rdb, []string{k}, token).Err(); err != nil {
				g.log.Warn("release generation lock failed", "key", k, "err", err)
			}
		})
	}, nil
}

func (g *RedisGuard) Close() error {
	if g == nil || g.rdb == nil {
		return nil
	}
	return g.rdb.Close()
}

var _ Guard = (*RedisGuard)(nil)
