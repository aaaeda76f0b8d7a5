//go:build integration
// +build integration

package test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/directory/memory"
)

const (
	tenantDomain  = "carbon.super"
	emailClaim    = "http://wso2.org/claims/emailaddress"
	emailVerified = "http://wso2.org/claims/identity/emailVerified"
)

func newIntegrationEngine(t *testing.T, cfg goRecovery.Config) (*goRecovery.Engine, *memory.Directory, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	dir := memory.New("")
	dir.AddTenant(tenantDomain, -1234, true)

	engine, err := goRecovery.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAccountStatus(dir).
		WithTenantResolver(dir).
		WithNotificationPolicy(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	return engine, dir, rdb, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func addVerifiedUser(t *testing.T, dir *memory.Directory, name, email string) {
	t.Helper()
	if err := dir.AddUser(tenantDomain, name, map[string]string{
		emailClaim:    email,
		emailVerified: "true",
	}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
}
