// Package appconfig loads the gorecovery service configuration from TOML,
// optional .env files and GORECOVERY_* environment variables.
package appconfig

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	goRecovery "github.com/MrEthical07/goRecovery"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "gorecovery.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "gorecovery"
	DefaultPGSSLMode       = "disable"
	DefaultRedisAddr       = "127.0.0.1:6379"
	DefaultDynamoRegion    = "us-east-1"
	DefaultDynamoTable     = "account_recovery"

	StoreRedis  = "redis"
	StoreDynamo = "dynamo"

	envPrefix = "GORECOVERY_"
)

// Config is the root service configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Dynamo   DynamoConfig   `toml:"dynamo"`
	Recovery RecoveryConfig `toml:"recovery"`
}

// Duration decodes TOML strings such as "15m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP listener and front-door settings.
type ServerConfig struct {
	Addr              string   `toml:"addr"`
	AllowedOrigins    []string `toml:"allowed_origins"`
	RateLimit         float64  `toml:"rate_limit"`
	RateBurst         int      `toml:"rate_burst"`
	TrustProxyHeaders bool     `toml:"trust_proxy_headers"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	Metrics           bool     `toml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN returns a postgres:// URL for the connection parameters.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// RedisConfig holds the Redis connection used for the store and limiter.
type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// DynamoConfig holds DynamoDB settings. EndpointURL targets LocalStack in development.
type DynamoConfig struct {
	Region      string `toml:"region"`
	EndpointURL string `toml:"endpoint_url"`
	AccessKeyID string `toml:"access_key_id"`
	SecretKey   string `toml:"secret_access_key"`
	Table       string `toml:"table"`
	CreateTable bool   `toml:"create_table"`
}

// RecoveryConfig maps onto goRecovery.Config.
type RecoveryConfig struct {
	Store             string   `toml:"store"`
	PrimaryDomain     string   `toml:"primary_domain"`
	CodeFormat        string   `toml:"code_format"`
	CodeTTL           Duration `toml:"code_ttl"`
	ExpiredRetention  Duration `toml:"expired_retention"`
	ErrorPrefix       string   `toml:"error_prefix"`
	InternallyManaged bool     `toml:"notifications_internally_managed"`

	LimiterEnabled   bool     `toml:"limiter_enabled"`
	LimiterWindow    Duration `toml:"limiter_window"`
	LimiterAttempts  int      `toml:"limiter_max_attempts"`
	AuditEnabled     bool     `toml:"audit_enabled"`
	AuditBufferSize  int      `toml:"audit_buffer_size"`
	MetricsEnabled   bool     `toml:"metrics_enabled"`
	LatencyHistogram bool     `toml:"latency_histograms"`
}

// Defaults returns the configuration used for missing fields.
func Defaults() Config {
	lib := goRecovery.DefaultConfig()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:            DefaultHTTPAddr,
			RateLimit:       5,
			RateBurst:       10,
			ShutdownTimeout: Duration{DefaultShutdownTimeout},
			Metrics:         true,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Dynamo: DynamoConfig{
			Region: DefaultDynamoRegion,
			Table:  DefaultDynamoTable,
		},
		Recovery: RecoveryConfig{
			Store:             StoreRedis,
			PrimaryDomain:     lib.Claims.PrimaryDomain,
			CodeFormat:        string(lib.Code.Format),
			CodeTTL:           Duration{lib.Store.CodeTTL},
			ExpiredRetention:  Duration{lib.Store.ExpiredRetention},
			ErrorPrefix:       lib.Scenario.ErrorPrefix,
			InternallyManaged: lib.Notification.InternallyManaged,
			LimiterEnabled:    true,
			LimiterWindow:     Duration{lib.Limiter.Window},
			LimiterAttempts:   lib.Limiter.MaxAttempts,
			AuditEnabled:      true,
			AuditBufferSize:   lib.Audit.BufferSize,
			MetricsEnabled:    true,
			LatencyHistogram:  true,
		},
	}
}

// Load reads .env files, the TOML file at path and GORECOVERY_* overrides, in
// that order. A missing config file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return cfg, err
	}

	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// loadDotEnv loads the files that exist. Variables already set win.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	var firstErr error
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, key, err)
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(envPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, key, err)
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(v)); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	str("SERVER_ADDR", &cfg.Server.Addr)
	if v, ok := lookup(envPrefix + "SERVER_ALLOWED_ORIGINS"); ok {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	flag("SERVER_TRUST_PROXY_HEADERS", &cfg.Server.TrustProxyHeaders)

	str("POSTGRES_HOST", &cfg.Postgres.Host)
	num("POSTGRES_PORT", &cfg.Postgres.Port)
	str("POSTGRES_USER", &cfg.Postgres.User)
	str("POSTGRES_PASSWORD", &cfg.Postgres.Password)
	str("POSTGRES_DATABASE", &cfg.Postgres.Database)
	str("POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)

	str("DYNAMO_REGION", &cfg.Dynamo.Region)
	str("DYNAMO_ENDPOINT_URL", &cfg.Dynamo.EndpointURL)
	str("DYNAMO_ACCESS_KEY_ID", &cfg.Dynamo.AccessKeyID)
	str("DYNAMO_SECRET_ACCESS_KEY", &cfg.Dynamo.SecretKey)
	str("DYNAMO_TABLE", &cfg.Dynamo.Table)

	str("RECOVERY_STORE", &cfg.Recovery.Store)
	str("RECOVERY_CODE_FORMAT", &cfg.Recovery.CodeFormat)
	dur("RECOVERY_CODE_TTL", &cfg.Recovery.CodeTTL)
	flag("RECOVERY_LIMITER_ENABLED", &cfg.Recovery.LimiterEnabled)

	return firstErr
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks service-level settings. Engine settings are validated by
// goRecovery when the engine is built.
func (c Config) Validate() error {
	switch c.Recovery.Store {
	case StoreRedis, StoreDynamo:
	default:
		return fmt.Errorf("recovery.store must be %q or %q, got %q", StoreRedis, StoreDynamo, c.Recovery.Store)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must be >= 0")
	}
	if c.Recovery.Store == StoreDynamo && c.Dynamo.Table == "" {
		return fmt.Errorf("dynamo.table is required when recovery.store is %q", StoreDynamo)
	}
	return nil
}

// EngineConfig converts the recovery section into a goRecovery.Config.
func (c Config) EngineConfig() goRecovery.Config {
	cfg := goRecovery.DefaultConfig()
	r := c.Recovery

	if r.PrimaryDomain != "" {
		cfg.Claims.PrimaryDomain = r.PrimaryDomain
	}
	if r.CodeFormat != "" {
		cfg.Code.Format = goRecovery.CodeFormat(strings.ToLower(r.CodeFormat))
	}
	if r.CodeTTL.Duration > 0 {
		cfg.Store.CodeTTL = r.CodeTTL.Duration
	}
	if r.ExpiredRetention.Duration > 0 {
		cfg.Store.ExpiredRetention = r.ExpiredRetention.Duration
	}
	if r.ErrorPrefix != "" {
		cfg.Scenario.ErrorPrefix = r.ErrorPrefix
	}
	cfg.Notification.InternallyManaged = r.InternallyManaged

	cfg.Limiter.Enabled = r.LimiterEnabled && r.Store == StoreRedis
	if r.LimiterWindow.Duration > 0 {
		cfg.Limiter.Window = r.LimiterWindow.Duration
	}
	if r.LimiterAttempts > 0 {
		cfg.Limiter.MaxAttempts = r.LimiterAttempts
	}

	cfg.Audit.Enabled = r.AuditEnabled
	if r.AuditBufferSize > 0 {
		cfg.Audit.BufferSize = r.AuditBufferSize
	}
	cfg.Metrics.Enabled = r.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = r.MetricsEnabled && r.LatencyHistogram
	return cfg
}
