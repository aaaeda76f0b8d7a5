package flows

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type ResolveRecoveryMetrics struct {
	ResolveSuccess     int
	ResolveFailure     int
	NoUserFound        int
	MultipleUsers      int
	AccountDisabled    int
	AccountLocked      int
	NoVerifiedChannels int
	CodeIssued         int
}

type ValidateRecoveryMetrics struct {
	ValidateSuccess int
	ValidateFailure int
	InvalidCode     int
	ExpiredCode     int
}

type RecoveryEvents struct {
	Resolve    string
	CodeIssued string
	Validate   string
}

type ResolveRecoveryErrors struct {
	EngineNotReady       error
	NoClaimsProvided     error
	TenantResolution     error
	RateLimited          error
	NoUserFound          error
	MultipleUsersMatched error
	AccountDisabled      error
	AccountLocked        error
	NoChannelsConfigured error
	NoVerifiedChannels   error
}

type ValidateRecoveryErrors struct {
	EngineNotReady      error
	RateLimited         error
	InvalidRecoveryCode error
	ExpiredRecoveryCode error
}

type ResolveRecoveryRequest struct {
	Claims       map[string]string
	TenantDomain string
	Scenario     string
	Properties   map[string]string
}

type ResolveRecoveryResult struct {
	Username string
	Account  RecoveryAccount
	Code     string
	Channels []RecoveryChannelEntry
}

type ResolveRecoveryDeps struct {
	PrimaryDomain string

	ResolveTenant         func(context.Context, string) (int, error)
	NotificationsInternal func(context.Context, string, map[string]string) (bool, error)
	CheckLimiter          func(ctx context.Context, tenantDomain, fingerprint, ip string) error
	MapLimiterError       func(error) error
	ClientIPFromContext   func(context.Context) string
	RequestIDFromContext  func(context.Context) string
	ObserveLatency        func(time.Duration)
	Now                   func() time.Time

	Username ResolveUsernameDeps
	Status   AccountStatusDeps
	Channels SelectChannelsDeps
	Issue    IssueRecoveryCodeDeps

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, string, func() map[string]string)
	Logger        *slog.Logger

	Metrics ResolveRecoveryMetrics
	Events  RecoveryEvents
	Errors  ResolveRecoveryErrors
}

// RunResolveRecovery resolves the account behind claims, checks its status,
// selects channels and issues a recovery code bound to them.
func RunResolveRecovery(ctx context.Context, req ResolveRecoveryRequest, deps ResolveRecoveryDeps) (ResolveRecoveryResult, error) {
	normalizeResolveRecoveryDeps(&deps)
	start := deps.Now()
	defer func() { deps.ObserveLatency(deps.Now().Sub(start)) }()

	result, err := resolveRecovery(ctx, req, deps)
	if err != nil {
		deps.MetricInc(deps.Metrics.ResolveFailure)
		switch {
		case errors.Is(err, deps.Errors.NoUserFound):
			deps.MetricInc(deps.Metrics.NoUserFound)
		case errors.Is(err, deps.Errors.MultipleUsersMatched):
			deps.MetricInc(deps.Metrics.MultipleUsers)
		case errors.Is(err, deps.Errors.AccountDisabled):
			deps.MetricInc(deps.Metrics.AccountDisabled)
		case errors.Is(err, deps.Errors.AccountLocked):
			deps.MetricInc(deps.Metrics.AccountLocked)
		case errors.Is(err, deps.Errors.NoVerifiedChannels), errors.Is(err, deps.Errors.NoChannelsConfigured):
			deps.MetricInc(deps.Metrics.NoVerifiedChannels)
		}
		deps.EmitAudit(ctx, deps.Events.Resolve, false, result.Username, req.TenantDomain, err, func() map[string]string {
			return map[string]string{
				"scenario":   req.Scenario,
				"request_id": deps.RequestIDFromContext(ctx),
			}
		})
		return ResolveRecoveryResult{}, err
	}

	deps.MetricInc(deps.Metrics.ResolveSuccess)
	deps.MetricInc(deps.Metrics.CodeIssued)
	deps.EmitAudit(ctx, deps.Events.CodeIssued, true, result.Username, req.TenantDomain, nil, func() map[string]string {
		return map[string]string{
			"scenario":      req.Scenario,
			"channel_count": strconv.Itoa(len(result.Channels)),
			"request_id":    deps.RequestIDFromContext(ctx),
		}
	})
	return result, nil
}

func resolveRecovery(ctx context.Context, req ResolveRecoveryRequest, deps ResolveRecoveryDeps) (ResolveRecoveryResult, error) {
	if deps.ResolveTenant == nil || deps.NotificationsInternal == nil {
		return ResolveRecoveryResult{}, deps.Errors.EngineNotReady
	}
	if len(req.Claims) == 0 {
		return ResolveRecoveryResult{}, deps.Errors.NoClaimsProvided
	}

	if deps.CheckLimiter != nil {
		ip := deps.ClientIPFromContext(ctx)
		if err := deps.CheckLimiter(ctx, req.TenantDomain, ClaimFingerprint(req.Claims), ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "recovery_resolve", req.TenantDomain, func() map[string]string {
					return map[string]string{
						"scenario": req.Scenario,
					}
				})
			}
			return ResolveRecoveryResult{}, mapped
		}
	}

	tenantID, err := deps.ResolveTenant(ctx, req.TenantDomain)
	if err != nil {
		return ResolveRecoveryResult{}, errors.Join(deps.Errors.TenantResolution, err)
	}

	username, err := RunResolveUsername(ctx, req.Claims, tenantID, deps.Username)
	if err != nil {
		return ResolveRecoveryResult{}, err
	}
	if username == "" {
		return ResolveRecoveryResult{}, deps.Errors.NoUserFound
	}

	storeDomain, bare := SplitUserStoreDomain(username, deps.PrimaryDomain)
	account := RecoveryAccount{
		Username:        bare,
		TenantDomain:    req.TenantDomain,
		UserStoreDomain: storeDomain,
	}
	result := ResolveRecoveryResult{Username: username, Account: account}
	log := deps.Logger.With(slog.String("tenant", req.TenantDomain), slog.String("user_store", storeDomain))

	if err := RunCheckAccountStatus(ctx, account, deps.Status); err != nil {
		log.DebugContext(ctx, "account status rejected recovery", slog.Any("error", err))
		return result, err
	}

	internal, err := deps.NotificationsInternal(ctx, req.TenantDomain, req.Properties)
	if err != nil {
		return result, errors.Join(deps.Errors.TenantResolution, err)
	}

	channels, err := RunSelectChannels(ctx, tenantID, username, internal, deps.Channels)
	if err != nil {
		return result, err
	}

	issued, err := RunIssueRecoveryCode(ctx, account, req.Scenario, channels, deps.Issue)
	if err != nil {
		return result, err
	}

	log.DebugContext(ctx, "recovery code issued", slog.Int("channels", len(issued.Channels)), slog.Bool("internal_notifications", internal))
	result.Code = issued.Code
	result.Channels = issued.Channels
	return result, nil
}

type ValidateRecoveryDeps struct {
	CheckLimiter         func(ctx context.Context, ip string) error
	MapLimiterError      func(error) error
	ClientIPFromContext  func(context.Context) string
	RequestIDFromContext func(context.Context) string
	ObserveLatency       func(time.Duration)
	Now                  func() time.Time

	Code ValidateRecoveryCodeDeps

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, string, func() map[string]string)

	Metrics ValidateRecoveryMetrics
	Events  RecoveryEvents
	Errors  ValidateRecoveryErrors
}

// RunValidateRecovery throttles and validates a presented recovery code.
func RunValidateRecovery(ctx context.Context, code, expectedStep string, deps ValidateRecoveryDeps) (*RecoveryStoreRecord, error) {
	normalizeValidateRecoveryDeps(&deps)
	start := deps.Now()
	defer func() { deps.ObserveLatency(deps.Now().Sub(start)) }()

	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "recovery_validate", "", nil)
			}
			deps.MetricInc(deps.Metrics.ValidateFailure)
			return nil, mapped
		}
	}

	record, err := RunValidateRecoveryCode(ctx, code, expectedStep, deps.Code)
	if err != nil {
		deps.MetricInc(deps.Metrics.ValidateFailure)
		switch {
		case errors.Is(err, deps.Errors.InvalidRecoveryCode):
			deps.MetricInc(deps.Metrics.InvalidCode)
		case errors.Is(err, deps.Errors.ExpiredRecoveryCode):
			deps.MetricInc(deps.Metrics.ExpiredCode)
		}
		deps.EmitAudit(ctx, deps.Events.Validate, false, "", "", err, func() map[string]string {
			return map[string]string{
				"step":       expectedStep,
				"request_id": deps.RequestIDFromContext(ctx),
			}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.ValidateSuccess)
	deps.EmitAudit(ctx, deps.Events.Validate, true, record.Account.Username, record.Account.TenantDomain, nil, func() map[string]string {
		return map[string]string{
			"step":       expectedStep,
			"scenario":   record.Scenario,
			"user_store": record.Account.UserStoreDomain,
			"request_id": deps.RequestIDFromContext(ctx),
		}
	})
	return record, nil
}

// ClaimFingerprint hashes the non-empty claims in key order so that limiter
// keys never carry raw claim values. It returns "" when no claim has both a
// key and a value, which leaves the request to the IP throttle alone.
func ClaimFingerprint(claims map[string]string) string {
	keys := make([]string, 0, len(claims))
	for k, v := range claims {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		_, _ = io.WriteString(h, k)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, claims[k])
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SplitUserStoreDomain returns the upper-cased user store domain and the bare
// username of a raw directory name.
func SplitUserStoreDomain(name, primary string) (string, string) {
	idx := strings.Index(name, "/")
	switch {
	case idx < 0:
		return primary, name
	case idx == 0:
		return primary, name[1:]
	default:
		return strings.ToUpper(name[:idx]), name[idx+1:]
	}
}

func normalizeResolveRecoveryDeps(deps *ResolveRecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if deps.Username.Logger == nil {
		deps.Username.Logger = deps.Logger
	}
	if deps.Channels.Logger == nil {
		deps.Channels.Logger = deps.Logger
	}
	if deps.Issue.Logger == nil {
		deps.Issue.Logger = deps.Logger
	}
	if deps.Issue.Now == nil {
		deps.Issue.Now = deps.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.RequestIDFromContext == nil {
		deps.RequestIDFromContext = func(context.Context) string { return "" }
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, string, func() map[string]string) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
}

func normalizeValidateRecoveryDeps(deps *ValidateRecoveryDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.RequestIDFromContext == nil {
		deps.RequestIDFromContext = func(context.Context) string { return "" }
	}
	if deps.ObserveLatency == nil {
		deps.ObserveLatency = func(time.Duration) {}
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = func(context.Context, string, string, func() map[string]string) {}
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
}
