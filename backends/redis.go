package backends

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/richardartoul/contentcache/cachekey"
)

// clearBatchSize bounds the number of keys removed per DEL during Clear.
const clearBatchSize = 500

// Redis implements Backend on a Redis server. All operations fail soft:
// if Redis is unavailable, reads miss and writes are discarded.
//
// Expiry is delegated to Redis: entries are written with the configured TTL
// and reads do not extend it. Size bounding is left to the server's
// maxmemory policy.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig configures a Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key so Clear only touches this cache.
	Prefix string
	// TTL is applied to every write. Zero means DefaultTTL.
	TTL time.Duration
}

// NewRedis creates a new Redis-backed cache backend.
func NewRedis(cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "contentcache:"
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		rdb:    rdb,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

// Get retrieves an object. Returns a miss when the key is absent or Redis
// is unreachable.
func (r *Redis) Get(ctx context.Context, key cachekey.Key) ([]byte, bool) {
	val, err := r.rdb.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Put stores an object with the configured TTL. Errors are discarded.
func (r *Redis) Put(ctx context.Context, key cachekey.Key, data []byte) {
	if len(data) == 0 {
		return
	}
	_ = r.rdb.Set(ctx, r.redisKey(key), data, r.ttl).Err()
}

// Remove deletes an object. Errors are discarded.
func (r *Redis) Remove(ctx context.Context, key cachekey.Key) {
	_ = r.rdb.Del(ctx, r.redisKey(key)).Err()
}

// Clear deletes every key under the configured prefix. A scan failure
// aborts silently.
func (r *Redis) Clear(ctx context.Context) {
	var batch []string
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", clearBatchSize).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == clearBatchSize {
			_ = r.rdb.Del(ctx, batch...).Err()
			batch = batch[:0]
		}
	}
	if iter.Err() != nil {
		return
	}
	if len(batch) > 0 {
		_ = r.rdb.Del(ctx, batch...).Err()
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) redisKey(key cachekey.Key) string {
	return r.prefix + key.String()
}
