package backends

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/richardartoul/contentcache/cachekey"
)

func redisBackend(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	r := NewRedis(RedisConfig{Addr: addr, Prefix: "contentcache-test:" + t.Name() + ":", TTL: 10 * time.Second})
	t.Cleanup(func() { _ = r.Close() })
	if err := r.Ping(t.Context()); err != nil {
		t.Fatalf("cannot reach Redis at %s: %v", addr, err)
	}
	return r
}

func TestRedis_PutGetClear(t *testing.T) {
	r := redisBackend(t)
	ctx := t.Context()
	key := cachekey.For("k")

	if _, ok := r.Get(ctx, key); ok {
		t.Fatal("expected miss")
	}
	r.Put(ctx, key, []byte("v1"))
	val, ok := r.Get(ctx, key)
	if !ok || string(val) != "v1" {
		t.Fatalf("Get = %q, %v; want %q, true", val, ok, "v1")
	}

	r.Clear(ctx)
	if _, ok := r.Get(ctx, key); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestRedis_FailSoft(t *testing.T) {
	// Connect to a bogus address; operations must not panic and must miss.
	r := NewRedis(RedisConfig{Addr: "localhost:1"})
	t.Cleanup(func() { _ = r.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 500*time.Millisecond)
	defer cancel()

	key := cachekey.For("no-such-key")
	if _, ok := r.Get(ctx, key); ok {
		t.Fatal("expected miss on unreachable Redis")
	}
	r.Put(ctx, key, []byte("v"))
	r.Remove(ctx, key)
	r.Clear(ctx)
}
