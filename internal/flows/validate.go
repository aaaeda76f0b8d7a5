package flows

import (
	"context"
	"errors"
)

type ValidateRecoveryCodeErrors struct {
	EngineNotReady        error
	InvalidRecoveryCode   error
	ExpiredRecoveryCode   error
	NoAccountRecoveryData error
	RecoveryDataLoad      error
}

// ValidateRecoveryCodeDeps maps store failures onto domain errors.
// IsInvalidCode and IsExpiredCode recognise the store's own conditions.
// QualifyStoreError builds a new error for any other store failure; it must
// not modify the error it receives.
type ValidateRecoveryCodeDeps struct {
	Load              func(context.Context, string) (*RecoveryStoreRecord, error)
	IsInvalidCode     func(error) bool
	IsExpiredCode     func(error) bool
	QualifyStoreError func(error) error
	Errors            ValidateRecoveryCodeErrors
}

// RunValidateRecoveryCode loads the record for code and requires it to sit at
// expectedStep.
func RunValidateRecoveryCode(ctx context.Context, code, expectedStep string, deps ValidateRecoveryCodeDeps) (*RecoveryStoreRecord, error) {
	normalizeValidateRecoveryCodeDeps(&deps)

	if deps.Load == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if code == "" {
		return nil, deps.Errors.InvalidRecoveryCode
	}

	record, err := deps.Load(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case deps.IsInvalidCode(err):
			return nil, errors.Join(deps.Errors.InvalidRecoveryCode, err)
		case deps.IsExpiredCode(err):
			return nil, errors.Join(deps.Errors.ExpiredRecoveryCode, err)
		default:
			return nil, deps.QualifyStoreError(err)
		}
	}
	if record == nil {
		return nil, deps.Errors.NoAccountRecoveryData
	}

	// Step mismatches are reported as invalid codes.
	if record.Step != expectedStep {
		return nil, deps.Errors.InvalidRecoveryCode
	}

	return record, nil
}

func normalizeValidateRecoveryCodeDeps(deps *ValidateRecoveryCodeDeps) {
	if deps.IsInvalidCode == nil {
		deps.IsInvalidCode = func(error) bool { return false }
	}
	if deps.IsExpiredCode == nil {
		deps.IsExpiredCode = func(error) bool { return false }
	}
	if deps.QualifyStoreError == nil {
		deps.QualifyStoreError = func(err error) error { return errors.Join(deps.Errors.RecoveryDataLoad, err) }
	}
}
