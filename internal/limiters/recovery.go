package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRecoveryRateLimited      = errors.New("recovery rate limited")
	ErrRecoveryRedisUnavailable = errors.New("recovery redis unavailable")
)

type RecoveryConfig struct {
	Prefix              string
	EnableClaimThrottle bool
	EnableIPThrottle    bool
	Window              time.Duration
	MaxAttempts         int
}

type RecoveryLimiter struct {
	redis  redis.UniversalClient
	config RecoveryConfig
}

func NewRecoveryLimiter(redisClient redis.UniversalClient, cfg RecoveryConfig) *RecoveryLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "arl"
	}
	return &RecoveryLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckResolve counts a recovery initiation against the claim fingerprint and
// the caller IP.
func (l *RecoveryLimiter) CheckResolve(ctx context.Context, tenantDomain, fingerprint, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableClaimThrottle && fingerprint != "" {
		if err := l.enforceFixedWindow(ctx, l.key("arci", tenantDomain, fingerprint)); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.key("arcip", tenantDomain, ip)); err != nil {
			return err
		}
	}
	return nil
}

// CheckValidate counts a code validation against the caller IP.
func (l *RecoveryLimiter) CheckValidate(ctx context.Context, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.enforceFixedWindow(ctx, l.key("arvip", "", ip))
	}
	return nil
}

// Cooldown is the fixed window length, the longest a throttled caller waits.
func (l *RecoveryLimiter) Cooldown() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *RecoveryLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxAttempts) {
		return ErrRecoveryRateLimited
	}

	return nil
}

func (l *RecoveryLimiter) key(kind, tenantDomain, subject string) string {
	if tenantDomain == "" {
		tenantDomain = "-"
	}
	return l.config.Prefix + ":" + kind + ":" + tenantDomain + ":" + subject
}
