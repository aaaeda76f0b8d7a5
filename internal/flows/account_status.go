package flows

import (
	"context"
	"errors"
)

type RecoveryAccount struct {
	Username        string
	TenantDomain    string
	UserStoreDomain string
}

type AccountStatusErrors struct {
	EngineNotReady    error
	AccountDisabled   error
	AccountLocked     error
	StatusUnavailable error
}

type AccountStatusDeps struct {
	IsDisabled func(context.Context, RecoveryAccount) (bool, error)
	IsLocked   func(context.Context, RecoveryAccount) (bool, error)
	Errors     AccountStatusErrors
}

// RunCheckAccountStatus rejects disabled accounts first, then locked ones.
func RunCheckAccountStatus(ctx context.Context, account RecoveryAccount, deps AccountStatusDeps) error {
	if deps.IsDisabled == nil || deps.IsLocked == nil {
		return deps.Errors.EngineNotReady
	}

	disabled, err := deps.IsDisabled(ctx, account)
	if err != nil {
		return errors.Join(deps.Errors.StatusUnavailable, err)
	}
	if disabled {
		return deps.Errors.AccountDisabled
	}

	locked, err := deps.IsLocked(ctx, account)
	if err != nil {
		return errors.Join(deps.Errors.StatusUnavailable, err)
	}
	if locked {
		return deps.Errors.AccountLocked
	}

	return nil
}
