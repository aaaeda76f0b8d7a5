package goRecovery

import (
	"errors"
	"log/slog"

	internalaudit "github.com/MrEthical07/goRecovery/internal/audit"
	"github.com/MrEthical07/goRecovery/internal/limiters"
	"github.com/MrEthical07/goRecovery/masking"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goRecovery APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	directory Directory
	status    AccountStatusProvider
	tenants   TenantResolver
	store     RecoveryStore
	policy    NotificationPolicy
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the default recovery store and the
// limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the user directory used for claim lookups.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

// WithAccountStatus describes the withaccountstatus operation and its observable behavior.
//
// WithAccountStatus may return an error when input validation, dependency calls, or security checks fail.
// WithAccountStatus does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountStatus(p AccountStatusProvider) *Builder {
	b.status = p
	return b
}

// WithTenantResolver describes the withtenantresolver operation and its observable behavior.
//
// WithTenantResolver may return an error when input validation, dependency calls, or security checks fail.
// WithTenantResolver does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithTenantResolver(r TenantResolver) *Builder {
	b.tenants = r
	return b
}

// WithRecoveryStore overrides the Redis recovery store.
func (b *Builder) WithRecoveryStore(s RecoveryStore) *Builder {
	b.store = s
	return b
}

// WithNotificationPolicy sets the per-tenant notification policy consulted
// when a request carries no notification property.
func (b *Builder) WithNotificationPolicy(p NotificationPolicy) *Builder {
	b.policy = p
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles resolve and validate latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and collaborators and returns a ready
// Engine. A Builder can be built once.
//
// Build requires a Directory, an AccountStatusProvider, a TenantResolver and
// either a RecoveryStore or a Redis client. The Redis limiter needs Redis even
// when a custom store is set.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.directory == nil {
		return nil, errors.New("directory required")
	}
	if b.status == nil {
		return nil, errors.New("account status provider required")
	}
	if b.tenants == nil {
		return nil, errors.New("tenant resolver required")
	}
	if b.store == nil && b.redis == nil {
		return nil, errors.New("recovery store or redis client required")
	}
	if cfg.Limiter.Enabled && b.redis == nil {
		return nil, errors.New("Limiter requires redis client")
	}

	// -------- MASKING --------
	masker, err := masking.New(masking.Config{
		EmailPattern:  cfg.Masking.EmailPattern,
		MobilePattern: cfg.Masking.MobilePattern,
		MaskChar:      cfg.Masking.MaskChar,
		MatchTimeout:  cfg.Masking.MatchTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "recovery"))

	engine := &Engine{
		config:    cloneConfig(cfg),
		directory: b.directory,
		status:    b.status,
		tenants:   b.tenants,
		policy:    b.policy,
		masker:    masker,
		logger:    logger,
	}

	// -------- RECOVERY STORE --------
	engine.store = b.store
	if engine.store == nil {
		engine.store = NewRedisRecoveryStore(b.redis, cfg.Store)
	}

	// -------- LIMITER --------
	if cfg.Limiter.Enabled {
		engine.limiter = limiters.NewRecoveryLimiter(b.redis, limiters.RecoveryConfig{
			Prefix:              cfg.Limiter.RedisPrefix,
			EnableClaimThrottle: cfg.Limiter.EnableClaimThrottle,
			EnableIPThrottle:    cfg.Limiter.EnableIPThrottle,
			Window:              cfg.Limiter.Window,
			MaxAttempts:         cfg.Limiter.MaxAttempts,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(event internalaudit.Event) {
			logger.Warn("audit event dropped", slog.String("event_type", event.EventType))
		},
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.flowDeps = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
