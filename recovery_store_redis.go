package goRecovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goRecovery/internal/stores"
	"github.com/redis/go-redis/v9"
)

type redisRecoveryStore struct {
	store *stores.RecoveryStore
}

// NewRedisRecoveryStore returns the Redis-backed RecoveryStore used by
// [Builder.Build] when no store is configured. Concurrent issuances for one
// account leave exactly one active code.
func NewRedisRecoveryStore(client redis.UniversalClient, cfg StoreConfig) RecoveryStore {
	return &redisRecoveryStore{
		store: stores.NewRecoveryStore(client, cfg.RedisPrefix, cfg.CodeTTL, cfg.ExpiredRetention),
	}
}

func (s *redisRecoveryStore) Load(ctx context.Context, code string) (*RecoveryRecord, error) {
	rec, err := s.store.Load(ctx, code)
	if err != nil {
		return nil, mapRedisRecoveryStoreError(err)
	}
	return &RecoveryRecord{
		Account: Account{
			Username:        rec.Username,
			TenantDomain:    rec.TenantDomain,
			UserStoreDomain: rec.UserStoreDomain,
		},
		Code:            rec.Code,
		Scenario:        RecoveryScenario(rec.Scenario),
		Step:            RecoveryStep(rec.Step),
		RemainingSetIDs: rec.RemainingSetIDs,
		CreatedAt:       time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

func (s *redisRecoveryStore) Store(ctx context.Context, record RecoveryRecord) error {
	err := s.store.Store(ctx, &stores.RecoveryRecord{
		Code:            record.Code,
		Username:        record.Account.Username,
		TenantDomain:    record.Account.TenantDomain,
		UserStoreDomain: record.Account.UserStoreDomain,
		Scenario:        string(record.Scenario),
		Step:            string(record.Step),
		RemainingSetIDs: record.RemainingSetIDs,
		CreatedAt:       record.CreatedAt.UnixNano(),
	})
	return mapRedisRecoveryStoreError(err)
}

func (s *redisRecoveryStore) Invalidate(ctx context.Context, account Account) error {
	err := s.store.Invalidate(ctx, account.TenantDomain, account.UserStoreDomain, account.Username)
	return mapRedisRecoveryStoreError(err)
}

func mapRedisRecoveryStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrRecoveryCodeInvalid):
		return ErrStoreInvalidCode
	case errors.Is(err, stores.ErrRecoveryCodeExpired):
		return ErrStoreExpiredCode
	default:
		return fmt.Errorf("redis recovery store: %w", err)
	}
}
