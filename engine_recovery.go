package goRecovery

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goRecovery/internal"
	"github.com/MrEthical07/goRecovery/internal/flows"
	"github.com/MrEthical07/goRecovery/internal/limiters"
)

// ResolveRecovery finds the single account matching claims in tenantDomain,
// rejects disabled or locked accounts, selects the notification channels the
// user may be contacted on and issues a recovery code bound to them. Any code
// previously issued to the account is invalidated first.
//
// Channel values in the result are masked. The returned username is the raw
// directory name, including a secondary user store prefix when present.
//
// Errors are *RecoveryError values carrying a scenario-qualified code;
// errors.Is matches both the sentinel and the collaborator cause.
func (e *Engine) ResolveRecovery(
	ctx context.Context,
	claims map[string]string,
	tenantDomain string,
	scenario RecoveryScenario,
	properties map[string]string,
) (*RecoveryChannelInfo, error) {
	if e == nil || e.store == nil {
		return nil, toRecoveryError(defaultErrorPrefix, ErrEngineNotReady)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !scenario.Valid() {
		return nil, e.publicError(ctx, ErrUnknownScenario)
	}

	result, err := flows.RunResolveRecovery(ctx, flows.ResolveRecoveryRequest{
		Claims:       claims,
		TenantDomain: tenantDomain,
		Scenario:     string(scenario),
		Properties:   properties,
	}, e.flowDeps.ResolveRecovery)
	if err != nil {
		return nil, e.publicError(ctx, err)
	}

	info := &RecoveryChannelInfo{
		Username:     result.Username,
		RecoveryCode: result.Code,
		Channels:     make([]ChannelInfo, 0, len(result.Channels)),
	}
	for _, entry := range result.Channels {
		channelType := ChannelType(entry.Channel.Type)
		info.Channels = append(info.Channels, ChannelInfo{
			ID:        entry.ID,
			Type:      channelType,
			Value:     e.MaskChannelValue(channelType, entry.Channel.Value),
			Preferred: entry.Channel.Preferred,
		})
	}
	return info, nil
}

// ValidateRecoveryCode returns the record behind code when it is active and
// sits at step. Unknown, invalidated and wrong-step codes fail with
// ErrInvalidRecoveryCode; codes past their lifetime fail with
// ErrExpiredRecoveryCode.
func (e *Engine) ValidateRecoveryCode(ctx context.Context, code string, step RecoveryStep) (*RecoveryRecord, error) {
	if e == nil || e.store == nil {
		return nil, toRecoveryError(defaultErrorPrefix, ErrEngineNotReady)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	record, err := flows.RunValidateRecovery(ctx, code, string(step), e.flowDeps.ValidateRecovery)
	if err != nil {
		return nil, e.publicError(ctx, err)
	}
	out := fromFlowRecord(*record)
	return &out, nil
}

// ResolveUsername describes the resolveusername operation and its observable behavior.
//
// ResolveUsername may return an error when input validation, dependency calls, or security checks fail.
// ResolveUsername does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResolveUsername(ctx context.Context, claims map[string]string, tenantDomain string) (string, error) {
	if e == nil || e.tenants == nil {
		return "", toRecoveryError(defaultErrorPrefix, ErrEngineNotReady)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if len(claims) == 0 {
		return "", e.publicError(ctx, ErrNoClaimsProvided)
	}

	tenantID, err := e.tenants.TenantID(ctx, tenantDomain)
	if err != nil {
		return "", e.publicError(ctx, errors.Join(ErrTenantResolution, err))
	}
	username, err := flows.RunResolveUsername(ctx, claims, tenantID, e.flowDeps.ResolveRecovery.Username)
	if err != nil {
		return "", e.publicError(ctx, err)
	}
	return username, nil
}

// MaskChannelValue masks an email address or mobile number for display.
// Values of other channel types are returned unchanged.
func (e *Engine) MaskChannelValue(channelType ChannelType, value string) string {
	if e == nil || e.masker == nil {
		return value
	}
	switch channelType {
	case ChannelEmail:
		return e.masker.Email(value)
	case ChannelSMS:
		return e.masker.Mobile(value)
	default:
		return value
	}
}

// RecoveryChannels returns the channels bound to record with their values
// masked for display.
func (e *Engine) RecoveryChannels(record *RecoveryRecord) []ChannelInfo {
	if e == nil || record == nil {
		return nil
	}
	entries := flows.ParseChannels(
		record.RemainingSetIDs,
		e.config.Serialization.AttributeSeparator,
		e.config.Serialization.ListSeparator,
	)
	out := make([]ChannelInfo, 0, len(entries))
	for _, entry := range entries {
		channelType := ChannelType(entry.Channel.Type)
		out = append(out, ChannelInfo{
			ID:    entry.ID,
			Type:  channelType,
			Value: e.MaskChannelValue(channelType, entry.Channel.Value),
		})
	}
	return out
}

// RetryAfter is how long a throttled caller should wait before retrying. It
// is zero when rate limiting is off.
func (e *Engine) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.limiter.Cooldown()
}

const defaultErrorPrefix = "UAR"

// publicError converts a flow error into its coded form and logs collaborator
// failures.
func (e *Engine) publicError(ctx context.Context, err error) error {
	out := toRecoveryError(e.config.Scenario.ErrorPrefix, err)

	var re *RecoveryError
	if errors.As(out, &re) && re.Kind() == ErrorKindServer {
		e.logger.ErrorContext(ctx, "account recovery failed",
			slog.String("code", re.Code()),
			slog.String("request_id", requestIDFromContext(ctx)),
			slog.Any("error", err),
		)
	}
	return out
}

func (e *Engine) buildFlowDeps() flows.Deps {
	return flows.Deps{
		ResolveRecovery:  e.resolveRecoveryDeps(),
		ValidateRecovery: e.validateRecoveryDeps(),
	}
}

func (e *Engine) resolveRecoveryDeps() flows.ResolveRecoveryDeps {
	cfg := e.config

	deps := flows.ResolveRecoveryDeps{
		PrimaryDomain: cfg.Claims.PrimaryDomain,
		ResolveTenant: func(ctx context.Context, domain string) (int, error) {
			return e.tenants.TenantID(ctx, domain)
		},
		NotificationsInternal: e.notificationsInternallyManaged,
		MapLimiterError:       mapRecoveryLimiterError,
		ClientIPFromContext:   clientIPFromContext,
		RequestIDFromContext:  requestIDFromContext,
		ObserveLatency: func(d time.Duration) {
			e.metrics.Observe(MetricResolveLatency, d)
		},
		Now: time.Now,
		Username: flows.ResolveUsernameDeps{
			FindUsersByClaim:     e.directory.FindUsersByClaim,
			SecondaryStoreExists: e.directory.SecondaryStoreExists,
			Logger:               e.logger,
			Errors: flows.ResolveUsernameErrors{
				EngineNotReady:       ErrEngineNotReady,
				NoClaimsProvided:     ErrNoClaimsProvided,
				NoUserFound:          ErrNoUserFound,
				MultipleUsersMatched: ErrMultipleUsersMatched,
				DirectoryUnavailable: ErrDirectoryUnavailable,
			},
		},
		Status: flows.AccountStatusDeps{
			IsDisabled: func(ctx context.Context, account flows.RecoveryAccount) (bool, error) {
				return e.status.IsDisabled(ctx, fromFlowAccount(account))
			},
			IsLocked: func(ctx context.Context, account flows.RecoveryAccount) (bool, error) {
				return e.status.IsLocked(ctx, fromFlowAccount(account))
			},
			Errors: flows.AccountStatusErrors{
				EngineNotReady:    ErrEngineNotReady,
				AccountDisabled:   ErrAccountDisabled,
				AccountLocked:     ErrAccountLocked,
				StatusUnavailable: ErrAccountStatusUnavailable,
			},
		},
		Channels: flows.SelectChannelsDeps{
			Channels: []flows.ChannelDefinition{
				{Type: string(ChannelEmail), ValueClaim: cfg.Claims.EmailURI, VerifyClaim: cfg.Claims.EmailVerifiedURI},
				{Type: string(ChannelSMS), ValueClaim: cfg.Claims.MobileURI, VerifyClaim: cfg.Claims.MobileVerifiedURI},
			},
			PreferredClaim:      cfg.Claims.PreferredChannel,
			RolesClaim:          cfg.Claims.RolesURI,
			RoleSeparator:       cfg.Claims.RoleSeparator,
			SelfSignupRole:      cfg.Claims.SelfSignupRole,
			ExternalChannelType: string(ChannelExternal),
			GetClaimValues:      e.directory.GetClaimValues,
			Logger:              e.logger,
			Errors: flows.SelectChannelsErrors{
				EngineNotReady:       ErrEngineNotReady,
				NoChannelsConfigured: ErrNoChannelsConfigured,
				NoVerifiedChannels:   ErrNoVerifiedChannels,
				ClaimsUnavailable:    ErrClaimsUnavailable,
			},
		},
		Issue: flows.IssueRecoveryCodeDeps{
			InitialStep:        string(StepSendRecoveryInformation),
			AttributeSeparator: cfg.Serialization.AttributeSeparator,
			ListSeparator:      cfg.Serialization.ListSeparator,
			GenerateCode:       e.generateCode,
			Invalidate: func(ctx context.Context, account flows.RecoveryAccount) error {
				return e.store.Invalidate(ctx, fromFlowAccount(account))
			},
			Store: func(ctx context.Context, record flows.RecoveryStoreRecord) error {
				return e.store.Store(ctx, fromFlowRecord(record))
			},
			Logger: e.logger,
			Errors: flows.IssueRecoveryCodeErrors{
				EngineNotReady:    ErrEngineNotReady,
				CodeGeneration:    ErrCodeGeneration,
				RecoveryDataStore: ErrRecoveryDataStore,
			},
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Logger:        e.logger,
		Metrics: flows.ResolveRecoveryMetrics{
			ResolveSuccess:     int(MetricResolveSuccess),
			ResolveFailure:     int(MetricResolveFailure),
			NoUserFound:        int(MetricNoUserFound),
			MultipleUsers:      int(MetricMultipleUsersMatched),
			AccountDisabled:    int(MetricAccountDisabled),
			AccountLocked:      int(MetricAccountLocked),
			NoVerifiedChannels: int(MetricNoVerifiedChannels),
			CodeIssued:         int(MetricCodeIssued),
		},
		Events: recoveryEvents(),
		Errors: flows.ResolveRecoveryErrors{
			EngineNotReady:       ErrEngineNotReady,
			NoClaimsProvided:     ErrNoClaimsProvided,
			TenantResolution:     ErrTenantResolution,
			RateLimited:          ErrRecoveryRateLimited,
			NoUserFound:          ErrNoUserFound,
			MultipleUsersMatched: ErrMultipleUsersMatched,
			AccountDisabled:      ErrAccountDisabled,
			AccountLocked:        ErrAccountLocked,
			NoChannelsConfigured: ErrNoChannelsConfigured,
			NoVerifiedChannels:   ErrNoVerifiedChannels,
		},
	}
	if e.limiter != nil {
		deps.CheckLimiter = e.limiter.CheckResolve
	}
	return deps
}

func (e *Engine) validateRecoveryDeps() flows.ValidateRecoveryDeps {
	deps := flows.ValidateRecoveryDeps{
		MapLimiterError:      mapRecoveryLimiterError,
		ClientIPFromContext:  clientIPFromContext,
		RequestIDFromContext: requestIDFromContext,
		ObserveLatency: func(d time.Duration) {
			e.metrics.Observe(MetricValidateLatency, d)
		},
		Now: time.Now,
		Code: flows.ValidateRecoveryCodeDeps{
			Load: func(ctx context.Context, code string) (*flows.RecoveryStoreRecord, error) {
				record, err := e.store.Load(ctx, code)
				if err != nil || record == nil {
					return nil, err
				}
				out := toFlowRecord(*record)
				return &out, nil
			},
			IsInvalidCode: func(err error) bool {
				return errors.Is(err, ErrStoreInvalidCode)
			},
			IsExpiredCode: func(err error) bool {
				return errors.Is(err, ErrStoreExpiredCode)
			},
			QualifyStoreError: e.mapRecoveryStoreLoadError,
			Errors: flows.ValidateRecoveryCodeErrors{
				EngineNotReady:        ErrEngineNotReady,
				InvalidRecoveryCode:   ErrInvalidRecoveryCode,
				ExpiredRecoveryCode:   ErrExpiredRecoveryCode,
				NoAccountRecoveryData: ErrNoAccountRecoveryData,
				RecoveryDataLoad:      ErrRecoveryDataLoad,
			},
		},
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
		Metrics: flows.ValidateRecoveryMetrics{
			ValidateSuccess: int(MetricValidateSuccess),
			ValidateFailure: int(MetricValidateFailure),
			InvalidCode:     int(MetricInvalidCode),
			ExpiredCode:     int(MetricExpiredCode),
		},
		Events: recoveryEvents(),
		Errors: flows.ValidateRecoveryErrors{
			EngineNotReady:      ErrEngineNotReady,
			RateLimited:         ErrRecoveryRateLimited,
			InvalidRecoveryCode: ErrInvalidRecoveryCode,
			ExpiredRecoveryCode: ErrExpiredRecoveryCode,
		},
	}
	if e.limiter != nil {
		deps.CheckLimiter = e.limiter.CheckValidate
	}
	return deps
}

func recoveryEvents() flows.RecoveryEvents {
	return flows.RecoveryEvents{
		Resolve:    auditEventRecoveryResolve,
		CodeIssued: auditEventRecoveryCodeIssued,
		Validate:   auditEventRecoveryCodeValidate,
	}
}

// notificationsInternallyManaged decides who sends recovery notifications: a
// request property first, then the tenant policy, then configuration. An
// unparsable property counts as false.
func (e *Engine) notificationsInternallyManaged(ctx context.Context, tenantDomain string, properties map[string]string) (bool, error) {
	if raw, ok := properties[e.config.Notification.PropertyKey]; ok {
		managed, err := strconv.ParseBool(strings.TrimSpace(raw))
		return err == nil && managed, nil
	}
	if e.policy != nil {
		return e.policy.NotificationsInternallyManaged(ctx, tenantDomain)
	}
	return e.config.Notification.InternallyManaged, nil
}

func (e *Engine) generateCode() (string, error) {
	switch e.config.Code.Format {
	case CodeULID:
		return internal.NewULIDCode(time.Now())
	case CodeToken:
		return internal.NewTokenCode()
	default:
		return internal.NewUUIDCode()
	}
}

// mapRecoveryStoreLoadError maps a store failure that is neither an invalid
// nor an expired code. A coded store error is re-issued under the scenario
// prefix without touching the original value.
func (e *Engine) mapRecoveryStoreLoadError(err error) error {
	if re := leadingRecoveryError(err); re != nil {
		return requalify(e.config.Scenario.ErrorPrefix, re)
	}
	return errors.Join(ErrRecoveryDataLoad, err)
}

func mapRecoveryLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrRecoveryRateLimited):
		return ErrRecoveryRateLimited
	default:
		return errors.Join(ErrInternal, err)
	}
}

func fromFlowAccount(a flows.RecoveryAccount) Account {
	return Account{
		Username:        a.Username,
		TenantDomain:    a.TenantDomain,
		UserStoreDomain: a.UserStoreDomain,
	}
}

func toFlowAccount(a Account) flows.RecoveryAccount {
	return flows.RecoveryAccount{
		Username:        a.Username,
		TenantDomain:    a.TenantDomain,
		UserStoreDomain: a.UserStoreDomain,
	}
}

func fromFlowRecord(r flows.RecoveryStoreRecord) RecoveryRecord {
	return RecoveryRecord{
		Account:         fromFlowAccount(r.Account),
		Code:            r.Code,
		Scenario:        RecoveryScenario(r.Scenario),
		Step:            RecoveryStep(r.Step),
		RemainingSetIDs: r.RemainingSetIDs,
		CreatedAt:       r.CreatedAt,
	}
}

func toFlowRecord(r RecoveryRecord) flows.RecoveryStoreRecord {
	return flows.RecoveryStoreRecord{
		Account:         toFlowAccount(r.Account),
		Code:            r.Code,
		Scenario:        string(r.Scenario),
		Step:            string(r.Step),
		RemainingSetIDs: r.RemainingSetIDs,
		CreatedAt:       r.CreatedAt,
	}
}
