package flows

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

type RecoveryStoreRecord struct {
	Account         RecoveryAccount
	Code            string
	Scenario        string
	Step            string
	RemainingSetIDs string
	CreatedAt       time.Time
}

// RecoveryChannelEntry is a selected channel with its display id.
type RecoveryChannelEntry struct {
	ID      int
	Channel RecoveryChannel
}

type IssueRecoveryCodeErrors struct {
	EngineNotReady    error
	CodeGeneration    error
	RecoveryDataStore error
}

type IssueRecoveryCodeDeps struct {
	InitialStep        string
	AttributeSeparator string
	ListSeparator      string

	GenerateCode func() (string, error)
	Now          func() time.Time
	Invalidate   func(context.Context, RecoveryAccount) error
	Store        func(context.Context, RecoveryStoreRecord) error

	Logger *slog.Logger
	Errors IssueRecoveryCodeErrors
}

type IssuedRecoveryCode struct {
	Code     string
	Record   RecoveryStoreRecord
	Channels []RecoveryChannelEntry
}

// SerializeChannels numbers channels from 1 in order and renders them as
// TYPE<attr>value<list> pairs.
func SerializeChannels(channels []RecoveryChannel, attrSep, listSep string) ([]RecoveryChannelEntry, string) {
	entries := make([]RecoveryChannelEntry, 0, len(channels))
	var b strings.Builder
	for i, ch := range channels {
		entries = append(entries, RecoveryChannelEntry{ID: i + 1, Channel: ch})
		b.WriteString(ch.Type)
		b.WriteString(attrSep)
		b.WriteString(ch.Value)
		b.WriteString(listSep)
	}
	return entries, b.String()
}

// ParseChannels reverses SerializeChannels. Empty list entries are skipped and
// ids are reassigned from 1 in stored order.
func ParseChannels(serialized, attrSep, listSep string) []RecoveryChannelEntry {
	if serialized == "" || attrSep == "" || listSep == "" {
		return nil
	}
	var entries []RecoveryChannelEntry
	for _, item := range strings.Split(serialized, listSep) {
		if item == "" {
			continue
		}
		channelType, value, _ := strings.Cut(item, attrSep)
		entries = append(entries, RecoveryChannelEntry{
			ID:      len(entries) + 1,
			Channel: RecoveryChannel{Type: channelType, Value: value},
		})
	}
	return entries
}

// RunIssueRecoveryCode invalidates any active record for the account and then
// stores a new one at the initial step.
func RunIssueRecoveryCode(
	ctx context.Context,
	account RecoveryAccount,
	scenario string,
	channels []RecoveryChannel,
	deps IssueRecoveryCodeDeps,
) (IssuedRecoveryCode, error) {
	if deps.Logger == nil {
		deps.Logger = discardLogger
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GenerateCode == nil || deps.Invalidate == nil || deps.Store == nil {
		return IssuedRecoveryCode{}, deps.Errors.EngineNotReady
	}

	code, err := deps.GenerateCode()
	if err != nil {
		return IssuedRecoveryCode{}, errors.Join(deps.Errors.CodeGeneration, err)
	}

	entries, serialized := SerializeChannels(channels, deps.AttributeSeparator, deps.ListSeparator)
	record := RecoveryStoreRecord{
		Account:         account,
		Code:            code,
		Scenario:        scenario,
		Step:            deps.InitialStep,
		RemainingSetIDs: serialized,
		CreatedAt:       deps.Now(),
	}

	if err := deps.Invalidate(ctx, account); err != nil {
		deps.Logger.ErrorContext(ctx, "invalidating recovery data failed", slog.Any("error", err))
		return IssuedRecoveryCode{}, errors.Join(deps.Errors.RecoveryDataStore, err)
	}
	if err := deps.Store(ctx, record); err != nil {
		deps.Logger.ErrorContext(ctx, "storing recovery data failed", slog.Any("error", err))
		return IssuedRecoveryCode{}, errors.Join(deps.Errors.RecoveryDataStore, err)
	}

	return IssuedRecoveryCode{
		Code:     code,
		Record:   record,
		Channels: entries,
	}, nil
}
