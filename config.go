package goRecovery

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goRecovery/masking"
)

// Config defines a public type used by goRecovery APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Claims        ClaimsConfig
	Serialization SerializationConfig
	Masking       MaskingConfig
	Notification  NotificationConfig
	Code          CodeConfig
	Scenario      ScenarioConfig
	Store         StoreConfig
	Limiter       LimiterConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
CLAIMS CONFIG
====================================
*/

// ClaimsConfig names the directory claims read by channel selection.
//
// ClaimsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ClaimsConfig struct {
	EmailURI          string
	EmailVerifiedURI  string
	MobileURI         string
	MobileVerifiedURI string
	PreferredChannel  string
	RolesURI          string

	SelfSignupRole string
	RoleSeparator  string
	PrimaryDomain  string
}

/*
====================================
SERIALIZATION CONFIG
====================================
*/

// SerializationConfig controls the persisted channel list format.
//
// SerializationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SerializationConfig struct {
	AttributeSeparator string
	ListSeparator      string
}

/*
====================================
MASKING CONFIG
====================================
*/

// MaskingConfig defines a public type used by goRecovery APIs.
//
// MaskingConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MaskingConfig struct {
	EmailPattern  string
	MobilePattern string
	MaskChar      string
	MatchTimeout  time.Duration
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig decides who delivers recovery notifications when no
// request property or [NotificationPolicy] does.
//
// NotificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type NotificationConfig struct {
	InternallyManaged bool
	PropertyKey       string
}

/*
====================================
CODE CONFIG
====================================
*/

// CodeFormat selects the recovery code encoding.
type CodeFormat string

const (
	// CodeUUID is an exported constant or variable used by the recovery engine.
	CodeUUID CodeFormat = "uuid"
	// CodeULID is an exported constant or variable used by the recovery engine.
	CodeULID CodeFormat = "ulid"
	// CodeToken is a 256-bit random value in base64url.
	CodeToken CodeFormat = "token"
)

// CodeConfig defines a public type used by goRecovery APIs.
//
// CodeConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CodeConfig struct {
	Format CodeFormat
}

/*
====================================
SCENARIO CONFIG
====================================
*/

// ScenarioConfig defines a public type used by goRecovery APIs.
//
// ScenarioConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ScenarioConfig struct {
	ErrorPrefix string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the Redis recovery store.
//
// StoreConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StoreConfig struct {
	RedisPrefix      string
	CodeTTL          time.Duration
	ExpiredRetention time.Duration
}

/*
====================================
LIMITER CONFIG
====================================
*/

// LimiterConfig defines a public type used by goRecovery APIs.
//
// LimiterConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LimiterConfig struct {
	Enabled             bool
	EnableClaimThrottle bool
	EnableIPThrottle    bool
	Window              time.Duration
	MaxAttempts         int
	RedisPrefix         string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig defines a public type used by goRecovery APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig defines a public type used by goRecovery APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Claims: ClaimsConfig{
			EmailURI:          "http://wso2.org/claims/emailaddress",
			EmailVerifiedURI:  "http://wso2.org/claims/identity/emailVerified",
			MobileURI:         "http://wso2.org/claims/mobile",
			MobileVerifiedURI: "http://wso2.org/claims/identity/phoneVerified",
			PreferredChannel:  "http://wso2.org/claims/preferredChannel",
			RolesURI:          "http://wso2.org/claims/role",
			SelfSignupRole:    "Internal/selfsignup",
			RoleSeparator:     ",",
			PrimaryDomain:     "PRIMARY",
		},
		Serialization: SerializationConfig{
			AttributeSeparator: ":",
			ListSeparator:      ",",
		},
		Masking: MaskingConfig{
			EmailPattern:  masking.DefaultEmailPattern,
			MobilePattern: masking.DefaultMobilePattern,
			MaskChar:      masking.DefaultMaskChar,
			MatchTimeout:  100 * time.Millisecond,
		},
		Notification: NotificationConfig{
			InternallyManaged: true,
			PropertyKey:       "manageNotificationsInternally",
		},
		Code: CodeConfig{
			Format: CodeUUID,
		},
		Scenario: ScenarioConfig{
			ErrorPrefix: "UAR",
		},
		Store: StoreConfig{
			RedisPrefix:      "arc",
			CodeTTL:          15 * time.Minute,
			ExpiredRetention: 24 * time.Hour,
		},
		Limiter: LimiterConfig{
			Enabled:             false,
			EnableClaimThrottle: true,
			EnableIPThrottle:    true,
			Window:              15 * time.Minute,
			MaxAttempts:         10,
			RedisPrefix:         "arl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Claims
	if c.Claims.EmailURI == "" || c.Claims.MobileURI == "" {
		return errors.New("Claims EmailURI and MobileURI are required")
	}
	if c.Claims.EmailVerifiedURI == "" || c.Claims.MobileVerifiedURI == "" {
		return errors.New("Claims EmailVerifiedURI and MobileVerifiedURI are required")
	}
	if c.Claims.PreferredChannel == "" {
		return errors.New("Claims PreferredChannel is required")
	}
	if c.Claims.RolesURI == "" {
		return errors.New("Claims RolesURI is required")
	}
	if c.Claims.SelfSignupRole == "" {
		return errors.New("Claims SelfSignupRole is required")
	}
	if c.Claims.RoleSeparator == "" {
		return errors.New("Claims RoleSeparator is required")
	}
	if c.Claims.PrimaryDomain == "" || strings.Contains(c.Claims.PrimaryDomain, "/") {
		return errors.New("Claims PrimaryDomain must be non-empty and must not contain '/'")
	}

	// Serialization
	if c.Serialization.AttributeSeparator == "" || c.Serialization.ListSeparator == "" {
		return errors.New("Serialization separators must be non-empty")
	}
	if c.Serialization.AttributeSeparator == c.Serialization.ListSeparator {
		return errors.New("Serialization AttributeSeparator and ListSeparator must differ")
	}

	// Masking
	if len([]rune(c.Masking.MaskChar)) != 1 {
		return errors.New("Masking MaskChar must be a single character")
	}
	if c.Masking.MatchTimeout < 0 {
		return errors.New("Masking MatchTimeout must be >= 0")
	}
	if err := masking.Compile(c.Masking.EmailPattern); err != nil {
		return errors.New("Masking EmailPattern does not compile: " + err.Error())
	}
	if err := masking.Compile(c.Masking.MobilePattern); err != nil {
		return errors.New("Masking MobilePattern does not compile: " + err.Error())
	}

	// Notification
	if c.Notification.PropertyKey == "" {
		return errors.New("Notification PropertyKey is required")
	}

	// Code
	switch c.Code.Format {
	case CodeUUID, CodeULID, CodeToken:
		// valid
	default:
		return errors.New("Code Format must be uuid, ulid, or token")
	}

	// Scenario
	if c.Scenario.ErrorPrefix == "" || strings.Contains(c.Scenario.ErrorPrefix, "-") {
		return errors.New("Scenario ErrorPrefix must be non-empty and must not contain '-'")
	}

	// Store
	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix is required")
	}
	if c.Store.CodeTTL <= 0 {
		return errors.New("Store CodeTTL must be > 0")
	}
	if c.Store.ExpiredRetention < 0 {
		return errors.New("Store ExpiredRetention must be >= 0")
	}

	// Limiter
	if c.Limiter.Enabled {
		if !c.Limiter.EnableClaimThrottle && !c.Limiter.EnableIPThrottle {
			return errors.New("Limiter must enable claim or IP throttle when enabled")
		}
		if c.Limiter.Window <= 0 {
			return errors.New("Limiter Window must be > 0")
		}
		if c.Limiter.MaxAttempts <= 0 {
			return errors.New("Limiter MaxAttempts must be > 0")
		}
		if c.Limiter.RedisPrefix == "" {
			return errors.New("Limiter RedisPrefix is required")
		}
	}

	// Audit
	if c.Audit.Enabled {
		if c.Audit.BufferSize <= 0 {
			return errors.New("Audit BufferSize must be > 0 when audit is enabled")
		}
	}

	return nil
}
