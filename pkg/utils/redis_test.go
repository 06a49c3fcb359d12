package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestIncrementWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := IncrementWindow(ctx, rdb, "k", 30*time.Second)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if ttl := mr.TTL("k"); ttl != 30*time.Second {
		t.Fatalf("expected ttl set on first hit, got %v", ttl)
	}

	mr.FastForward(31 * time.Second)
	got, err := IncrementWindow(ctx, rdb, "k", 30*time.Second)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 1 {
		t.Fatalf("expected window to restart, got %d", got)
	}
}

func TestIncrementWindowRestoresMissingTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if err := mr.Set("k", "4"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := IncrementWindow(context.Background(), rdb, "k", time.Minute)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if mr.TTL("k") <= 0 {
		t.Fatalf("expected ttl to be restored")
	}
}

func TestIncrementWindowValidatesArgs(t *testing.T) {
	ctx := context.Background()
	if _, err := IncrementWindow(ctx, nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := IncrementWindow(ctx, rdb, "", time.Second); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := IncrementWindow(ctx, rdb, "k", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	if _, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr()}); err == nil {
		t.Fatalf("expected auth failure without password")
	}

	rdb, err := OpenRedis(context.Background(), RedisConfig{Addr: mr.Addr(), Password: "s3cret"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}
