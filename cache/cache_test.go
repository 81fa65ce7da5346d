package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/neuralnotes/neuralnotes/logger"
)

func openCaches(t *testing.T) map[string]ArtifactCache {
	t.Helper()

	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	rc := NewRedisCache(RedisConfig{Addr: mini.Addr()}, logger.Nop())
	t.Cleanup(func() { rc.Close() })

	return map[string]ArtifactCache{
		"memory": NewMemoryCache(),
		"redis":  rc,
	}
}

func TestGetMissThenHit(t *testing.T) {
	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := c.Get(ctx, "TRANSCRIBING", "sum-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if ok {
				t.Fatal("expected miss on empty cache")
			}

			payload := []byte(`{"segments":[]}`)
			if err := c.Put(ctx, "TRANSCRIBING", "sum-1", payload, 0); err != nil {
				t.Fatalf("Put: %v", err)
			}

			got, ok, err := c.Get(ctx, "TRANSCRIBING", "sum-1")
			if err != nil || !ok {
				t.Fatalf("Get after Put = ok=%v, err=%v", ok, err)
			}
			if string(got) != string(payload) {
				t.Errorf("payload = %q", got)
			}
		})
	}
}

func TestKeysAreScopedByStageAndChecksum(t *testing.T) {
	for name, c := range openCaches(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := c.Put(ctx, "TRANSCRIBING", "sum-1", []byte("a"), 0); err != nil {
				t.Fatal(err)
			}

			// Same checksum under a different stage is a distinct entry.
			if _, ok, _ := c.Get(ctx, "DIARIZING", "sum-1"); ok {
				t.Error("stage must be part of the key")
			}
			// Same stage with a different checksum misses.
			if _, ok, _ := c.Get(ctx, "TRANSCRIBING", "sum-2"); ok {
				t.Error("checksum must be part of the key")
			}
		})
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Put(ctx, "MERGING", "sum-1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "MERGING", "sum-1"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "MERGING", "sum-1"); ok {
		t.Error("expected miss after expiry")
	}
}

func TestRedisCacheExpiry(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mini.Close()
	c := NewRedisCache(RedisConfig{Addr: mini.Addr()}, logger.Nop())
	defer c.Close()
	ctx := context.Background()

	if err := c.Put(ctx, "MERGING", "sum-1", []byte("x"), time.Minute); err != nil {
		t.Fatal(err)
	}
	mini.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "MERGING", "sum-1"); ok {
		t.Error("expected miss after ttl elapsed")
	}
}

func TestRedisCacheDefaultTTL(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	defer mini.Close()
	c := NewRedisCache(RedisConfig{Addr: mini.Addr(), DefaultTTL: time.Hour}, logger.Nop())
	defer c.Close()

	if err := c.Put(context.Background(), "INDEXING", "sum-1", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	ttl := mini.TTL("neuralnotes:artifact:INDEXING:sum-1")
	if ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestRedisCachePing(t *testing.T) {
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	c := NewRedisCache(RedisConfig{Addr: mini.Addr()}, logger.Nop())
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mini.Close()
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping after server stop should fail")
	}
}
