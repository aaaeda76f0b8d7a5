package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRecoveryLimiterTest(t *testing.T, cfg RecoveryConfig) (*RecoveryLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRecoveryLimiter(rdb, cfg), mr
}

func TestRecoveryLimiterClaimThrottle(t *testing.T) {
	l, _ := newRecoveryLimiterTest(t, RecoveryConfig{
		EnableClaimThrottle: true,
		Window:              time.Minute,
		MaxAttempts:         2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckResolve(ctx, "carbon.super", "fp", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.CheckResolve(ctx, "carbon.super", "fp", ""); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected ErrRecoveryRateLimited, got %v", err)
	}
	// Other fingerprints and tenants have their own windows.
	if err := l.CheckResolve(ctx, "carbon.super", "other", ""); err != nil {
		t.Fatalf("unexpected error for other fingerprint: %v", err)
	}
	if err := l.CheckResolve(ctx, "wso2.com", "fp", ""); err != nil {
		t.Fatalf("unexpected error for other tenant: %v", err)
	}
}

func TestRecoveryLimiterWindowResets(t *testing.T) {
	l, mr := newRecoveryLimiterTest(t, RecoveryConfig{
		EnableIPThrottle: true,
		Window:           time.Minute,
		MaxAttempts:      1,
	})
	ctx := context.Background()

	if err := l.CheckValidate(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.CheckValidate(ctx, "10.0.0.1"); !errors.Is(err, ErrRecoveryRateLimited) {
		t.Fatalf("expected ErrRecoveryRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckValidate(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestRecoveryLimiterDisabledThrottles(t *testing.T) {
	l, _ := newRecoveryLimiterTest(t, RecoveryConfig{
		Window:      time.Minute,
		MaxAttempts: 1,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.CheckResolve(ctx, "t", "fp", "10.0.0.1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := l.CheckValidate(ctx, "10.0.0.1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestRecoveryLimiterNilSafe(t *testing.T) {
	var l *RecoveryLimiter
	if err := l.CheckResolve(context.Background(), "t", "fp", "ip"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := l.CheckValidate(context.Background(), "ip"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestRecoveryLimiterRedisUnavailable(t *testing.T) {
	l, mr := newRecoveryLimiterTest(t, RecoveryConfig{
		EnableIPThrottle: true,
		Window:           time.Minute,
		MaxAttempts:      1,
	})
	mr.Close()

	if err := l.CheckValidate(context.Background(), "10.0.0.1"); !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
}

func TestRecoveryLimiterSkipsEmptyFingerprint(t *testing.T) {
	l, mr := newRecoveryLimiterTest(t, RecoveryConfig{
		EnableClaimThrottle: true,
		Window:              time.Minute,
		MaxAttempts:         1,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckResolve(ctx, "carbon.super", "", ""); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no limiter keys, got %v", keys)
	}
}

func TestRecoveryLimiterCooldown(t *testing.T) {
	var nilLimiter *RecoveryLimiter
	if got := nilLimiter.Cooldown(); got != 0 {
		t.Fatalf("expected zero cooldown, got %v", got)
	}
	l, _ := newRecoveryLimiterTest(t, RecoveryConfig{Window: 90 * time.Second, MaxAttempts: 1})
	if got := l.Cooldown(); got != 90*time.Second {
		t.Fatalf("expected window as cooldown, got %v", got)
	}
}
