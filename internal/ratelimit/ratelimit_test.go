package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := New(rdb, 2)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	allowed, used, resetAt, err := l.Allow(context.Background(), "op", "summary", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}
	if want := now.Add(time.Hour); !resetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, resetAt)
	}

	allowed, used, _, err = l.Allow(context.Background(), "op", "summary", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = l.Allow(context.Background(), "op", "summary", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}

	// a different prompt has its own window
	allowed, used, _, err = l.Allow(context.Background(), "op", "rewrite", now)
	if err != nil {
		t.Fatalf("allow other prompt: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected separate window per prompt, got allowed=%v used=%d", allowed, used)
	}
}
