package goRecovery

import (
	"context"
	"time"

	"github.com/MrEthical07/goRecovery/internal/flows"
)

// ChannelType identifies an out-of-band notification channel.
type ChannelType string

const (
	// ChannelEmail is an exported constant or variable used by the recovery engine.
	ChannelEmail ChannelType = "EMAIL"
	// ChannelSMS is an exported constant or variable used by the recovery engine.
	ChannelSMS ChannelType = "SMS"
	// ChannelExternal is the synthetic channel returned when notifications are
	// delivered outside this system.
	ChannelExternal ChannelType = "EXTERNAL"
)

// RecoveryScenario names the reason a recovery was started.
type RecoveryScenario string

const (
	// ScenarioUsernameRecovery is an exported constant or variable used by the recovery engine.
	ScenarioUsernameRecovery RecoveryScenario = "USERNAME_RECOVERY"
	// ScenarioNotificationPasswordRecovery is an exported constant or variable used by the recovery engine.
	ScenarioNotificationPasswordRecovery RecoveryScenario = "NOTIFICATION_BASED_PW_RECOVERY"
	// ScenarioQuestionPasswordRecovery is an exported constant or variable used by the recovery engine.
	ScenarioQuestionPasswordRecovery RecoveryScenario = "QUESTION_BASED_PWD_RECOVERY"
)

// Valid reports whether s is a known scenario.
func (s RecoveryScenario) Valid() bool {
	switch s {
	case ScenarioUsernameRecovery, ScenarioNotificationPasswordRecovery, ScenarioQuestionPasswordRecovery:
		return true
	default:
		return false
	}
}

// RecoveryStep is the protocol position a recovery code is valid for.
type RecoveryStep string

const (
	// StepSendRecoveryInformation is the step every freshly issued code starts at.
	StepSendRecoveryInformation RecoveryStep = "SEND_RECOVERY_INFORMATION"
	// StepResendConfirmationCode is an exported constant or variable used by the recovery engine.
	StepResendConfirmationCode RecoveryStep = "RESEND_CONFIRMATION_CODE"
	// StepUpdatePassword is an exported constant or variable used by the recovery engine.
	StepUpdatePassword RecoveryStep = "UPDATE_PASSWORD"
	// StepValidateChallengeQuestion is an exported constant or variable used by the recovery engine.
	StepValidateChallengeQuestion RecoveryStep = "VALIDATE_CHALLENGE_QUESTION"
)

// Valid reports whether s is a known step.
func (s RecoveryStep) Valid() bool {
	switch s {
	case StepSendRecoveryInformation, StepResendConfirmationCode, StepUpdatePassword, StepValidateChallengeQuestion:
		return true
	default:
		return false
	}
}

// Account identifies a user inside a tenant and user store.
type Account struct {
	Username        string
	TenantDomain    string
	UserStoreDomain string
}

// NotificationChannel is one channel's eligibility for recovery.
type NotificationChannel struct {
	Type      ChannelType
	Value     string
	Verified  bool
	Preferred bool
}

// RecoveryRecord is the persisted state behind a recovery code.
//
// RemainingSetIDs holds the serialized channel selection, for example
// "EMAIL:jane@example.com,SMS:+15550100,".
type RecoveryRecord struct {
	Account         Account
	Code            string
	Scenario        RecoveryScenario
	Step            RecoveryStep
	RemainingSetIDs string
	CreatedAt       time.Time
}

// ChannelInfo is the display form of a notification channel.
type ChannelInfo struct {
	ID        int         `json:"id"`
	Type      ChannelType `json:"type"`
	Value     string      `json:"value"`
	Preferred bool        `json:"preferred"`
}

// RecoveryChannelInfo is returned by [Engine.ResolveRecovery].
type RecoveryChannelInfo struct {
	Username     string        `json:"username"`
	RecoveryCode string        `json:"recovery_code"`
	Channels     []ChannelInfo `json:"channels"`
}

// Directory is the user directory consulted for claim lookups.
//
// Usernames returned by FindUsersByClaim are raw directory names; names in a
// secondary user store carry a "DOMAIN/" prefix.
type Directory interface {
	FindUsersByClaim(ctx context.Context, tenantID int, claimURI, value string) ([]string, error)
	GetClaimValues(ctx context.Context, tenantID int, username string, claimURIs []string) (map[string]string, error)
	SecondaryStoreExists(ctx context.Context, tenantID int, domain string) (bool, error)
}

// AccountStatusProvider reports lock and disable state for an account.
type AccountStatusProvider interface {
	IsDisabled(ctx context.Context, account Account) (bool, error)
	IsLocked(ctx context.Context, account Account) (bool, error)
}

// RecoveryStore persists recovery records.
//
// Load returns [ErrStoreInvalidCode] for unknown or invalidated codes and
// [ErrStoreExpiredCode] for codes past their lifetime. A nil record with a nil
// error means the store holds no data for the code. Store must leave at most
// one active record per account even when called concurrently.
type RecoveryStore interface {
	Load(ctx context.Context, code string) (*RecoveryRecord, error)
	Store(ctx context.Context, record RecoveryRecord) error
	Invalidate(ctx context.Context, account Account) error
}

// TenantResolver maps a tenant domain to its numeric id.
type TenantResolver interface {
	TenantID(ctx context.Context, tenantDomain string) (int, error)
}

// NotificationPolicy decides per tenant whether recovery notifications are
// sent by this system or by an external service.
type NotificationPolicy interface {
	NotificationsInternallyManaged(ctx context.Context, tenantDomain string) (bool, error)
}

// SplitUserStoreDomain separates a raw directory name into its user store
// domain and bare username. Names without a domain belong to primary. A
// leading "/" marks an escaped value that also belongs to primary.
func SplitUserStoreDomain(name, primary string) (domain, username string) {
	return flows.SplitUserStoreDomain(name, primary)
}
