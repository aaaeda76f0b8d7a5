package stores

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRecoveryStoreTest(t *testing.T) (*RecoveryStore, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRecoveryStore(rdb, "arc", 15*time.Minute, time.Hour)
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecoveryRecord(code string) *RecoveryRecord {
	return &RecoveryRecord{
		Code:            code,
		Username:        "alice",
		TenantDomain:    "carbon.super",
		UserStoreDomain: "PRIMARY",
		Scenario:        "USERNAME_RECOVERY",
		Step:            "SEND_RECOVERY_INFORMATION",
		RemainingSetIDs: "EMAIL:alice@example.com,SMS:+15550100,",
		CreatedAt:       time.Now().UnixNano(),
	}
}

func TestRecoveryStoreRoundTrip(t *testing.T) {
	store, _, _, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	want := testRecoveryRecord("code-1")
	if err := store.Store(ctx, want); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := store.Load(ctx, "code-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != *want {
		t.Fatalf("record mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestRecoveryStoreUnknownCodeIsInvalid(t *testing.T) {
	store, _, _, done := newRecoveryStoreTest(t)
	defer done()

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected ErrRecoveryCodeInvalid, got %v", err)
	}
}

func TestRecoveryStoreReissueInvalidatesPrevious(t *testing.T) {
	store, _, _, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Store(ctx, testRecoveryRecord("first")); err != nil {
		t.Fatalf("store first: %v", err)
	}
	if err := store.Store(ctx, testRecoveryRecord("second")); err != nil {
		t.Fatalf("store second: %v", err)
	}

	if _, err := store.Load(ctx, "first"); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected first code invalid, got %v", err)
	}
	if _, err := store.Load(ctx, "second"); err != nil {
		t.Fatalf("expected second code valid, got %v", err)
	}
}

func TestRecoveryStoreInvalidate(t *testing.T) {
	store, _, _, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Store(ctx, testRecoveryRecord("code-1")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Invalidate(ctx, "carbon.super", "primary", "alice"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := store.Load(ctx, "code-1"); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected invalid after invalidate, got %v", err)
	}
	// Invalidating an account without codes is a no-op.
	if err := store.Invalidate(ctx, "carbon.super", "PRIMARY", "nobody"); err != nil {
		t.Fatalf("invalidate empty: %v", err)
	}
}

func TestRecoveryStoreAccountsAreIsolated(t *testing.T) {
	store, _, _, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	alice := testRecoveryRecord("alice-code")
	bob := testRecoveryRecord("bob-code")
	bob.Username = "bob"

	if err := store.Store(ctx, alice); err != nil {
		t.Fatalf("store alice: %v", err)
	}
	if err := store.Store(ctx, bob); err != nil {
		t.Fatalf("store bob: %v", err)
	}
	if _, err := store.Load(ctx, "alice-code"); err != nil {
		t.Fatalf("alice code lost: %v", err)
	}
}

func TestRecoveryStoreExpiredCode(t *testing.T) {
	store, mr, _, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	rec := testRecoveryRecord("code-1")
	rec.CreatedAt = now.UnixNano()
	if err := store.Store(ctx, rec); err != nil {
		t.Fatalf("store: %v", err)
	}

	store.now = func() time.Time { return now.Add(16 * time.Minute) }
	if _, err := store.Load(ctx, "code-1"); !errors.Is(err, ErrRecoveryCodeExpired) {
		t.Fatalf("expected ErrRecoveryCodeExpired, got %v", err)
	}

	// After the retention window Redis evicts the record.
	mr.FastForward(2 * time.Hour)
	if _, err := store.Load(ctx, "code-1"); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected ErrRecoveryCodeInvalid after eviction, got %v", err)
	}
}

func TestRecoveryStoreRedisUnavailable(t *testing.T) {
	store, mr, _, done := newRecoveryStoreTest(t)
	defer done()

	mr.Close()
	if _, err := store.Load(context.Background(), "x"); !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable, got %v", err)
	}
	if err := store.Store(context.Background(), testRecoveryRecord("x")); !errors.Is(err, ErrRecoveryRedisUnavailable) {
		t.Fatalf("expected ErrRecoveryRedisUnavailable on store, got %v", err)
	}
}

func TestRecoveryStoreConcurrentIssueLeavesOneActive(t *testing.T) {
	store, _, rdb, done := newRecoveryStoreTest(t)
	defer done()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Store(ctx, testRecoveryRecord(fmt.Sprintf("code-%d", i)))
		}(i)
	}
	wg.Wait()

	stored := 0
	for i, err := range errs {
		switch {
		case err == nil:
			stored++
		case errors.Is(err, ErrRecoveryStoreContention):
		default:
			t.Fatalf("worker %d: unexpected error %v", i, err)
		}
	}
	if stored == 0 {
		t.Fatal("expected at least one issuance to commit")
	}

	active := 0
	for i := 0; i < workers; i++ {
		if _, err := store.Load(ctx, fmt.Sprintf("code-%d", i)); err == nil {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active code, got %d", active)
	}

	members, err := rdb.SMembers(ctx, store.accountKey("carbon.super", "PRIMARY", "alice")).Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected one indexed code, got %v", members)
	}
}

func TestDecodeRecoveryRecordRejectsUnknownVersion(t *testing.T) {
	data, err := encodeRecoveryRecord(testRecoveryRecord("c"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data[0] = 9
	if _, err := decodeRecoveryRecord(data); err == nil {
		t.Fatal("expected version error")
	}
	if _, err := decodeRecoveryRecord(data[:3]); err == nil {
		t.Fatal("expected truncation error")
	}
}
