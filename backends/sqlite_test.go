package backends

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/richardartoul/contentcache/cachekey"
)

func newTestSQLite(t *testing.T, maxSize int64, ttl time.Duration) (*SQLite, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s, err := OpenSQLite(SQLiteConfig{
		Path:    filepath.Join(t.TempDir(), "cache", "records.db"),
		MaxSize: maxSize,
		TTL:     ttl,
	}, WithSQLiteClock(clock.Now))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	if _, err := OpenSQLite(SQLiteConfig{Path: "  "}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLite_PutGetRemoveClear(t *testing.T) {
	s, _ := newTestSQLite(t, DefaultMaxSize, DefaultTTL)
	ctx := t.Context()
	a, b := cachekey.For("a"), cachekey.For("b")

	if _, ok := s.Get(ctx, a); ok {
		t.Fatal("expected miss")
	}

	s.Put(ctx, a, []byte("one"))
	s.Put(ctx, b, []byte("two"))
	s.Put(ctx, b, []byte("three"))

	if data, ok := s.Get(ctx, b); !ok || string(data) != "three" {
		t.Fatalf("Get(b) = %q, %v; want %q, true", data, ok, "three")
	}

	s.Remove(ctx, a)
	if _, ok := s.Get(ctx, a); ok {
		t.Fatal("expected miss after Remove")
	}

	s.Clear(ctx)
	if _, ok := s.Get(ctx, b); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestSQLite_EmptyIsNoop(t *testing.T) {
	s, _ := newTestSQLite(t, DefaultMaxSize, DefaultTTL)
	key := cachekey.For("empty")
	s.Put(t.Context(), key, nil)
	if _, ok := s.Get(t.Context(), key); ok {
		t.Fatal("empty content should not be stored")
	}
}

func TestSQLite_TTLExpiry(t *testing.T) {
	ttl := time.Minute
	s, clock := newTestSQLite(t, DefaultMaxSize, ttl)
	ctx := t.Context()
	key := cachekey.For("ttl")

	written := clock.Now()
	s.Put(ctx, key, []byte("v"))

	clock.Set(written.Add(ttl - time.Millisecond))
	if _, ok := s.Get(ctx, key); !ok {
		t.Fatal("expected hit before TTL")
	}
	clock.Set(written.Add(ttl))
	if _, ok := s.Get(ctx, key); ok {
		t.Fatal("expected miss at TTL")
	}
}

func TestSQLite_EvictsLeastRecentlyUsed(t *testing.T) {
	s, clock := newTestSQLite(t, 100, time.Hour)
	ctx := t.Context()
	a, b, c := cachekey.For("A"), cachekey.For("B"), cachekey.For("C")
	payload := bytes.Repeat([]byte("x"), 40)

	s.Put(ctx, a, payload)
	clock.Advance(time.Second)
	s.Put(ctx, b, payload)
	clock.Advance(time.Second)
	if _, ok := s.Get(ctx, a); !ok {
		t.Fatal("expected hit for A")
	}
	clock.Advance(time.Second)
	s.Put(ctx, c, payload)

	if _, ok := s.Get(ctx, b); ok {
		t.Error("B should have been evicted")
	}
	if _, ok := s.Get(ctx, a); !ok {
		t.Error("A should remain")
	}
	if _, ok := s.Get(ctx, c); !ok {
		t.Error("C should remain")
	}
}
