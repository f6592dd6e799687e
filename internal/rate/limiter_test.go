package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, max int) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, Config{Prefix: "t", MaxAttempts: max, Window: time.Minute}), mr
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	l, _ := newTestLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Fail(ctx, "login", "a@b.c"); err != nil {
			t.Fatalf("attempt %d: unexpected %v", i, err)
		}
	}
	if err := l.Check(ctx, "login", "a@b.c"); err != nil {
		t.Fatalf("expected budget left, got %v", err)
	}
	if err := l.Fail(ctx, "login", "a@b.c"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "login", "a@b.c"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "mfa", "a@b.c"); err != nil {
		t.Fatalf("scopes must be independent, got %v", err)
	}
}

func TestLimiterWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, 1)
	ctx := context.Background()

	_ = l.Fail(ctx, "mfa", "u1")
	if err := l.Check(ctx, "mfa", "u1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if err := l.Check(ctx, "mfa", "u1"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestLimiterReset(t *testing.T) {
	l, _ := newTestLimiter(t, 5)
	ctx := context.Background()

	_ = l.Fail(ctx, "login", "x")
	_ = l.Fail(ctx, "login", "x")
	if n, _ := l.Attempts(ctx, "login", "x"); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
	if err := l.Reset(ctx, "login", "x"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := l.Attempts(ctx, "login", "x"); n != 0 {
		t.Fatalf("expected 0 attempts, got %d", n)
	}
}

func TestLimiterRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	l := New(rdb, Config{MaxAttempts: 5, Window: time.Minute})
	mr.Close()
	if err := l.Check(context.Background(), "login", "x"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
