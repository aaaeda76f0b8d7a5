package goRecovery

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRecoveryResolve      = "recovery_resolve"
	auditEventRecoveryCodeIssued   = "recovery_code_issued"
	auditEventRecoveryCodeValidate = "recovery_code_validate"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by goRecovery APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrNoClaims           AuditErrorCode = "no_claims"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrMultipleUsers      AuditErrorCode = "multiple_users"
	auditErrAccountDisabled    AuditErrorCode = "account_disabled"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrNoChannels         AuditErrorCode = "no_channels"
	auditErrNoVerifiedChannels AuditErrorCode = "no_verified_channels"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrExpiredCode        AuditErrorCode = "expired_code"
	auditErrNoRecoveryData     AuditErrorCode = "no_recovery_data"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrUnknownScenario    AuditErrorCode = "unknown_scenario"
	auditErrTenant             AuditErrorCode = "tenant_resolution"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrCanceled           AuditErrorCode = "canceled"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	username string,
	tenantDomain string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Username:     username,
		TenantDomain: tenantDomain,
		RequestID:    requestIDFromContext(ctx),
		IP:           clientIPFromContext(ctx),
		Success:      success,
		Metadata:     metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	tenantDomain string,
	metadataBuilder func() map[string]string,
) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", tenantDomain, ErrRecoveryRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return auditErrCanceled
	case errors.Is(err, ErrNoClaimsProvided):
		return auditErrNoClaims
	case errors.Is(err, ErrNoUserFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrMultipleUsersMatched):
		return auditErrMultipleUsers
	case errors.Is(err, ErrAccountDisabled):
		return auditErrAccountDisabled
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrNoChannelsConfigured):
		return auditErrNoChannels
	case errors.Is(err, ErrNoVerifiedChannels):
		return auditErrNoVerifiedChannels
	case errors.Is(err, ErrInvalidRecoveryCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrExpiredRecoveryCode):
		return auditErrExpiredCode
	case errors.Is(err, ErrNoAccountRecoveryData):
		return auditErrNoRecoveryData
	case errors.Is(err, ErrRecoveryRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrUnknownScenario):
		return auditErrUnknownScenario
	case errors.Is(err, ErrTenantResolution):
		return auditErrTenant
	case errors.Is(err, ErrDirectoryUnavailable),
		errors.Is(err, ErrClaimsUnavailable),
		errors.Is(err, ErrAccountStatusUnavailable),
		errors.Is(err, ErrRecoveryDataStore),
		errors.Is(err, ErrRecoveryDataLoad):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
