package goRecovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testTenant = "carbon.super"
	testEmail  = "alice@example.com"
	testMobile = "+94771234567"
)

var errDirectoryDown = errors.New("directory down")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

type mockDirectory struct {
	mu sync.Mutex

	// claim URI -> value -> raw usernames
	byClaim map[string]map[string][]string
	// raw username -> claim URI -> value
	claims map[string]map[string]string
	stores map[string]bool

	findErr   error
	claimsErr error

	lookups     []string
	claimsCalls int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{
		byClaim: map[string]map[string][]string{},
		claims:  map[string]map[string]string{},
		stores:  map[string]bool{},
	}
}

// addUser indexes every claim of username for lookup.
func (d *mockDirectory) addUser(username string, claims map[string]string) {
	d.claims[username] = claims
	for uri, value := range claims {
		if d.byClaim[uri] == nil {
			d.byClaim[uri] = map[string][]string{}
		}
		d.byClaim[uri][value] = append(d.byClaim[uri][value], username)
	}
}

func (d *mockDirectory) FindUsersByClaim(_ context.Context, _ int, claimURI, value string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lookups = append(d.lookups, claimURI+"="+value)
	if d.findErr != nil {
		return nil, d.findErr
	}
	return append([]string(nil), d.byClaim[claimURI][value]...), nil
}

func (d *mockDirectory) GetClaimValues(_ context.Context, _ int, username string, claimURIs []string) (map[string]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.claimsCalls++
	if d.claimsErr != nil {
		return nil, d.claimsErr
	}
	out := map[string]string{}
	for _, uri := range claimURIs {
		if v, ok := d.claims[username][uri]; ok && v != "" {
			out[uri] = v
		}
	}
	return out, nil
}

func (d *mockDirectory) SecondaryStoreExists(_ context.Context, _ int, domain string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stores[domain], nil
}

type mockStatus struct {
	mu       sync.Mutex
	disabled map[string]bool
	locked   map[string]bool
	err      error
	seen     []Account
}

func (s *mockStatus) IsDisabled(_ context.Context, account Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, account)
	if s.err != nil {
		return false, s.err
	}
	return s.disabled[account.Username], nil
}

func (s *mockStatus) IsLocked(_ context.Context, account Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	return s.locked[account.Username], nil
}

type mockTenants map[string]int

func (m mockTenants) TenantID(_ context.Context, domain string) (int, error) {
	id, ok := m[domain]
	if !ok {
		return 0, errors.New("unknown tenant " + domain)
	}
	return id, nil
}

type policyFunc func(context.Context, string) (bool, error)

func (f policyFunc) NotificationsInternallyManaged(ctx context.Context, tenantDomain string) (bool, error) {
	return f(ctx, tenantDomain)
}

// stubRecoveryStore serves Load from a fixed response and records writes.
type stubRecoveryStore struct {
	mu         sync.Mutex
	loadRecord *RecoveryRecord
	loadErr    error
	storeErr   error
	invalidErr error
	ops        []string
	lastStored RecoveryRecord
}

func (s *stubRecoveryStore) Load(context.Context, string) (*RecoveryRecord, error) {
	return s.loadRecord, s.loadErr
}

func (s *stubRecoveryStore) Store(_ context.Context, record RecoveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "store")
	s.lastStored = record
	return s.storeErr
}

func (s *stubRecoveryStore) Invalidate(context.Context, Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "invalidate")
	return s.invalidErr
}

type recoveryFixture struct {
	engine *Engine
	dir    *mockDirectory
	status *mockStatus
	mr     *miniredis.Miniredis
}

// newRecoveryFixture builds an engine over miniredis with alice in the
// primary store. configure may adjust the builder before Build.
func newRecoveryFixture(t *testing.T, cfg Config, configure func(*Builder)) *recoveryFixture {
	t.Helper()

	mr, rdb := newTestRedis(t)
	dir := newMockDirectory()
	dir.addUser("alice", map[string]string{
		cfg.Claims.EmailURI:          testEmail,
		cfg.Claims.EmailVerifiedURI:  "true",
		cfg.Claims.MobileURI:         testMobile,
		cfg.Claims.MobileVerifiedURI: "true",
		cfg.Claims.PreferredChannel:  string(ChannelEmail),
		cfg.Claims.RolesURI:          "Internal/everyone",
	})
	status := &mockStatus{disabled: map[string]bool{}, locked: map[string]bool{}}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithDirectory(dir).
		WithAccountStatus(status).
		WithTenantResolver(mockTenants{testTenant: -1234})
	if configure != nil {
		configure(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})

	return &recoveryFixture{engine: engine, dir: dir, status: status, mr: mr}
}

func emailClaims(cfg Config, email string) map[string]string {
	return map[string]string{cfg.Claims.EmailURI: email}
}

func requireCode(t *testing.T, err error, sentinel error, code string) *RecoveryError {
	t.Helper()

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	var re *RecoveryError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RecoveryError, got %T", err)
	}
	if re.Code() != code {
		t.Fatalf("expected code %s, got %s", code, re.Code())
	}
	return re
}
