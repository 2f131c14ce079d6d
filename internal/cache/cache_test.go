package cache

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c := NewMemory[string](30 * time.Second)
	c.now = func() time.Time { return now }

	c.Set(ctx, "user_1", "Léa")
	if v, ok := c.Get(ctx, "user_1"); !ok || v != "Léa" {
		t.Fatalf("expected hit, got %q, %v", v, ok)
	}

	now = now.Add(29 * time.Second)
	if _, ok := c.Get(ctx, "user_1"); !ok {
		t.Error("expected hit before ttl")
	}
	now = now.Add(time.Second)
	if _, ok := c.Get(ctx, "user_1"); ok {
		t.Error("expected miss at ttl")
	}
}

func TestMemoryInvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](time.Minute)
	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)

	c.Invalidate(ctx, "a")
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected a to be invalidated")
	}
	if v, ok := c.Get(ctx, "b"); !ok || v != 2 {
		t.Error("expected b to survive invalidation of a")
	}

	c.Clear(ctx)
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestMemoryZeroTTLDisablesCaching(t *testing.T) {
	ctx := context.Background()
	c := NewMemory[int](0)
	c.Set(ctx, "a", 1)
	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected miss with zero ttl")
	}
}

func TestNewCacheWithoutClientIsMemory(t *testing.T) {
	c := NewCache[string](Factory{}, "bot_info", time.Second)
	if _, ok := c.(*Memory[string]); !ok {
		t.Errorf("expected *Memory, got %T", c)
	}
}

func TestRedisCache(t *testing.T) {
	url := ""
	if v, ok := syscall.Getenv("REDIS_URL"); ok {
		url = v
	}
	if url == "" {
		t.Skip("env REDIS_URL not set")
	}
	cfg := RedisConfig{URL: url, ReadTimeout: 3, WriteTimeout: 3, DialTimeout: 5}
	client, err := cfg.New()
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	type info struct{ Name string }
	c := NewRedis[info](client, "botrouter_test", time.Minute)
	c.Clear(ctx)

	c.Set(ctx, "global", info{Name: "Léa"})
	if v, ok := c.Get(ctx, "global"); !ok || v.Name != "Léa" {
		t.Fatalf("expected hit, got %+v, %v", v, ok)
	}
	c.Invalidate(ctx, "global")
	if _, ok := c.Get(ctx, "global"); ok {
		t.Error("expected miss after invalidate")
	}
}
