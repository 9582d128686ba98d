package metadata

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/media"
)

func newTestCache(cfg CacheConfig) (*Cache, *time.Time) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCache(cfg)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(CacheConfig{TTL: time.Minute, MaxItems: 100})
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "key1", []media.CandidateRecord{{ID: 1, Title: "Inception"}})

	val, ok := cache.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected key1 to exist")
	}
	if len(val) != 1 || val[0].Title != "Inception" {
		t.Errorf("unexpected value %+v", val)
	}

	if _, ok := cache.Get(ctx, "nonexistent"); ok {
		t.Error("expected key to not exist")
	}
}

func TestCache_EmptyResultsAreCached(t *testing.T) {
	cache, _ := newTestCache(CacheConfig{TTL: time.Minute, MaxItems: 100})
	defer cache.Close()

	cache.Set(context.Background(), "none", nil)
	val, ok := cache.Get(context.Background(), "none")
	if !ok || len(val) != 0 {
		t.Errorf("Get() = %v, %v", val, ok)
	}
}

func TestCache_Expiration(t *testing.T) {
	cache, now := newTestCache(CacheConfig{TTL: time.Minute, MaxItems: 100})
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "key1", []media.CandidateRecord{{ID: 1}})
	*now = now.Add(2 * time.Minute)

	if _, ok := cache.Get(ctx, "key1"); ok {
		t.Error("expected key1 to be expired")
	}
}

func TestCache_EvictsWhenFull(t *testing.T) {
	cache, now := newTestCache(CacheConfig{TTL: time.Hour, MaxItems: 10})
	defer cache.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		cache.Set(ctx, fmt.Sprintf("key%d", i), nil)
		*now = now.Add(time.Second)
	}
	cache.Set(ctx, "key10", nil)

	if cache.Len() != 10 {
		t.Errorf("Len() = %d, want 10", cache.Len())
	}
	if _, ok := cache.Get(ctx, "key0"); ok {
		t.Error("expected oldest key to be evicted")
	}
	if _, ok := cache.Get(ctx, "key10"); !ok {
		t.Error("expected newest key to exist")
	}
}

func TestCache_ReturnsCopy(t *testing.T) {
	cache, _ := newTestCache(CacheConfig{TTL: time.Hour, MaxItems: 10})
	defer cache.Close()
	ctx := context.Background()

	cache.Set(ctx, "k", []media.CandidateRecord{{Title: "A"}})
	got, _ := cache.Get(ctx, "k")
	got[0].Title = "B"

	again, _ := cache.Get(ctx, "k")
	if again[0].Title != "A" {
		t.Errorf("cache entry mutated: %q", again[0].Title)
	}
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisCache(ctx, config.RedisConfig{Addr: "127.0.0.1:1"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected connection error")
	}
}
