package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goRecovery "github.com/MrEthical07/goRecovery"
	"github.com/MrEthical07/goRecovery/directory/memory"
)

const (
	loadtestTenant     = "carbon.super"
	loadtestEmailClaim = "http://wso2.org/claims/emailaddress"
	loadtestVerified   = "http://wso2.org/claims/identity/emailVerified"
)

var loadtestFlags struct {
	users       int
	concurrency int
	ops         int
	redisAddr   string
}

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Benchmark resolve and validate against Redis",
	Long: `Seeds an in-memory directory, then runs concurrent resolve and validate
phases against a Redis-backed engine. Without --redis-addr or REDIS_ADDR an
embedded miniredis is used.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := loadtestFlags
		if f.users <= 0 || f.concurrency <= 0 || f.ops <= 0 {
			return errors.New("users, concurrency and ops must be > 0")
		}
		addr := f.redisAddr
		if addr == "" {
			addr = os.Getenv("REDIS_ADDR")
		}
		return runLoadtest(cmd.Context(), addr, f.users, f.concurrency, f.ops)
	},
}

func init() {
	fs := loadtestCmd.Flags()
	fs.IntVar(&loadtestFlags.users, "users", 10000, "number of accounts to seed")
	fs.IntVar(&loadtestFlags.concurrency, "concurrency", 128, "number of concurrent workers")
	fs.IntVar(&loadtestFlags.ops, "ops", 50000, "operations per phase (resolve + validate)")
	fs.StringVar(&loadtestFlags.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
}

// accountState holds the latest code issued to a seeded account.
type accountState struct {
	email string
	mu    sync.Mutex
	code  string
}

func runLoadtest(ctx context.Context, addr string, users, concurrency, ops int) error {
	var client *redis.Client
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		fmt.Printf("using redis at %s\n", addr)
	}
	defer client.Close()

	dir := memory.New("")
	dir.AddTenant(loadtestTenant, -1234, true)

	states := make([]accountState, users)
	fmt.Printf("seeding %d accounts...\n", users)
	startSeed := time.Now()
	for i := range states {
		states[i].email = fmt.Sprintf("user-%d@example.com", i)
		err := dir.AddUser(loadtestTenant, fmt.Sprintf("user-%d", i), map[string]string{
			loadtestEmailClaim: states[i].email,
			loadtestVerified:   "true",
		})
		if err != nil {
			return fmt.Errorf("seed directory: %w", err)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	engine, err := goRecovery.New().
		WithRedis(client).
		WithDirectory(dir).
		WithAccountStatus(dir).
		WithTenantResolver(dir).
		WithNotificationPolicy(dir).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	resolveStats := runPhase(concurrency, ops, len(states), 7919, func(idx int) error {
		state := &states[idx]
		state.mu.Lock()
		defer state.mu.Unlock()

		info, err := engine.ResolveRecovery(ctx,
			map[string]string{loadtestEmailClaim: state.email},
			loadtestTenant,
			goRecovery.ScenarioNotificationPasswordRecovery,
			nil,
		)
		if err != nil {
			return err
		}
		state.code = info.RecoveryCode
		return nil
	})

	validateStats := runPhase(concurrency, ops, len(states), 6151, func(idx int) error {
		state := &states[idx]
		state.mu.Lock()
		code := state.code
		state.mu.Unlock()
		if code == "" {
			return errors.New("no code issued")
		}
		_, err := engine.ValidateRecoveryCode(ctx, code, goRecovery.StepSendRecoveryInformation)
		return err
	})

	fmt.Println("---- results ----")
	printStats("resolve", resolveStats)
	printStats("validate", validateStats)
	return nil
}

// runPhase spreads ops calls of op over concurrency workers, each picking a
// random account index.
func runPhase(concurrency, ops, accounts int, seed int64, op func(idx int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r.Intn(accounts))
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
