package goRecovery

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoClaimsProvided is an exported constant or variable used by the recovery engine.
	ErrNoClaimsProvided = errors.New("no claims provided for account recovery")
	// ErrNoUserFound is an exported constant or variable used by the recovery engine.
	ErrNoUserFound = errors.New("no user found for the given claims")
	// ErrMultipleUsersMatched is an exported constant or variable used by the recovery engine.
	ErrMultipleUsersMatched = errors.New("multiple users matched the given claims")
	// ErrAccountDisabled is an exported constant or variable used by the recovery engine.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked is an exported constant or variable used by the recovery engine.
	ErrAccountLocked = errors.New("account locked")
	// ErrNoChannelsConfigured is an exported constant or variable used by the recovery engine.
	ErrNoChannelsConfigured = errors.New("no notification channels configured for user")
	// ErrNoVerifiedChannels is an exported constant or variable used by the recovery engine.
	ErrNoVerifiedChannels = errors.New("no verified notification channels for user")
	// ErrInvalidRecoveryCode is an exported constant or variable used by the recovery engine.
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	// ErrExpiredRecoveryCode is an exported constant or variable used by the recovery engine.
	ErrExpiredRecoveryCode = errors.New("expired recovery code")
	// ErrNoAccountRecoveryData is an exported constant or variable used by the recovery engine.
	ErrNoAccountRecoveryData = errors.New("no account recovery data for code")
	// ErrRecoveryRateLimited is an exported constant or variable used by the recovery engine.
	ErrRecoveryRateLimited = errors.New("account recovery rate limited")
	// ErrUnknownScenario is an exported constant or variable used by the recovery engine.
	ErrUnknownScenario = errors.New("unknown recovery scenario")

	// ErrTenantResolution is an exported constant or variable used by the recovery engine.
	ErrTenantResolution = errors.New("error resolving tenant configuration")
	// ErrDirectoryUnavailable is an exported constant or variable used by the recovery engine.
	ErrDirectoryUnavailable = errors.New("error retrieving users for claim")
	// ErrClaimsUnavailable is an exported constant or variable used by the recovery engine.
	ErrClaimsUnavailable = errors.New("error loading user claims")
	// ErrAccountStatusUnavailable is an exported constant or variable used by the recovery engine.
	ErrAccountStatusUnavailable = errors.New("error checking account status")
	// ErrRecoveryDataStore is an exported constant or variable used by the recovery engine.
	ErrRecoveryDataStore = errors.New("error storing recovery data")
	// ErrRecoveryDataLoad is an exported constant or variable used by the recovery engine.
	ErrRecoveryDataLoad = errors.New("error loading recovery data")
	// ErrCodeGeneration is an exported constant or variable used by the recovery engine.
	ErrCodeGeneration = errors.New("recovery code generation failed")
	// ErrEngineNotReady is an exported constant or variable used by the recovery engine.
	ErrEngineNotReady = errors.New("recovery engine not ready")
	// ErrInternal is an exported constant or variable used by the recovery engine.
	ErrInternal = errors.New("account recovery internal error")

	// ErrStoreInvalidCode is returned by RecoveryStore.Load when the code is unknown or invalidated.
	ErrStoreInvalidCode = errors.New("recovery store: invalid code")
	// ErrStoreExpiredCode is returned by RecoveryStore.Load when the code is known but past its lifetime.
	ErrStoreExpiredCode = errors.New("recovery store: expired code")
)

// ErrorKind separates caller-fixable failures from collaborator failures.
type ErrorKind uint8

const (
	// ErrorKindClient is an exported constant or variable used by the recovery engine.
	ErrorKindClient ErrorKind = iota + 1
	// ErrorKindServer is an exported constant or variable used by the recovery engine.
	ErrorKindServer
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindClient:
		return "client"
	case ErrorKindServer:
		return "server"
	default:
		return "unknown"
	}
}

// GenericServerMessage is the public text of every server-side RecoveryError.
const GenericServerMessage = "account recovery is temporarily unavailable"

type errorEntry struct {
	sentinel error
	code     string
	kind     ErrorKind
}

var errorCatalog = []errorEntry{
	{ErrNoClaimsProvided, "10001", ErrorKindClient},
	{ErrNoUserFound, "10002", ErrorKindClient},
	{ErrMultipleUsersMatched, "10003", ErrorKindClient},
	{ErrAccountDisabled, "10004", ErrorKindClient},
	{ErrAccountLocked, "10005", ErrorKindClient},
	{ErrNoChannelsConfigured, "10006", ErrorKindClient},
	{ErrNoVerifiedChannels, "10007", ErrorKindClient},
	{ErrInvalidRecoveryCode, "10008", ErrorKindClient},
	{ErrExpiredRecoveryCode, "10009", ErrorKindClient},
	{ErrNoAccountRecoveryData, "10010", ErrorKindClient},
	{ErrRecoveryRateLimited, "10011", ErrorKindClient},
	{ErrUnknownScenario, "10012", ErrorKindClient},
	{ErrInternal, "15000", ErrorKindServer},
	{ErrTenantResolution, "15001", ErrorKindServer},
	{ErrDirectoryUnavailable, "15002", ErrorKindServer},
	{ErrClaimsUnavailable, "15003", ErrorKindServer},
	{ErrAccountStatusUnavailable, "15004", ErrorKindServer},
	{ErrRecoveryDataStore, "15005", ErrorKindServer},
	{ErrRecoveryDataLoad, "15006", ErrorKindServer},
	{ErrCodeGeneration, "15007", ErrorKindServer},
	{ErrEngineNotReady, "15008", ErrorKindServer},
}

// RecoveryError is the error value returned by Engine operations. It carries a
// stable scenario-qualified code and wraps both the matching sentinel and the
// underlying cause, so errors.Is works against either.
//
// RecoveryError values are never mutated after construction; remapping always
// produces a new value.
type RecoveryError struct {
	code     string
	kind     ErrorKind
	sentinel error
	cause    error
}

// NewRecoveryError builds a coded error. It is exported so RecoveryStore
// implementations can report their own codes; the engine qualifies unprefixed
// codes with the configured scenario prefix.
func NewRecoveryError(code string, kind ErrorKind, sentinel error, cause error) *RecoveryError {
	return &RecoveryError{
		code:     code,
		kind:     kind,
		sentinel: sentinel,
		cause:    cause,
	}
}

func (e *RecoveryError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message()
	if e.cause != nil && e.cause != e.sentinel {
		return e.code + ": " + msg + ": " + e.cause.Error()
	}
	return e.code + ": " + msg
}

// Code returns the error code, for example "UAR-10002".
func (e *RecoveryError) Code() string {
	if e == nil {
		return ""
	}
	return e.code
}

// Kind reports whether the caller can fix the failure.
func (e *RecoveryError) Kind() ErrorKind {
	if e == nil {
		return 0
	}
	return e.kind
}

// Message returns the sentinel text without code or cause.
func (e *RecoveryError) Message() string {
	if e == nil {
		return ""
	}
	if e.sentinel != nil {
		return e.sentinel.Error()
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return ""
}

// Public returns the message that is safe to show to an end user. Server
// errors collapse to a generic message.
func (e *RecoveryError) Public() string {
	if e == nil {
		return ""
	}
	if e.kind == ErrorKindServer {
		return GenericServerMessage
	}
	return e.Message()
}

// Unwrap exposes the sentinel and the cause to errors.Is and errors.As.
func (e *RecoveryError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.sentinel != nil {
		out = append(out, e.sentinel)
	}
	if e.cause != nil && e.cause != e.sentinel {
		out = append(out, e.cause)
	}
	return out
}

// QualifyErrorCode prepends the scenario prefix to code unless it already
// carries one.
func QualifyErrorCode(prefix, code string) string {
	if prefix == "" || code == "" {
		return code
	}
	if strings.HasPrefix(code, prefix+"-") {
		return code
	}
	return prefix + "-" + code
}

// requalify returns a new RecoveryError with the scenario-qualified code and
// the original value as its cause.
func requalify(prefix string, re *RecoveryError) *RecoveryError {
	return &RecoveryError{
		code:     QualifyErrorCode(prefix, re.code),
		kind:     re.kind,
		sentinel: re.sentinel,
		cause:    re,
	}
}

// toRecoveryError converts a flow error into the public coded form. Flow
// errors lead with their sentinel, either directly or as the first element of
// an errors.Join.
func toRecoveryError(prefix string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var coded *RecoveryError
	if errors.As(err, &coded) && leadingRecoveryError(err) == coded {
		if strings.HasPrefix(coded.code, prefix+"-") {
			return coded
		}
		return requalify(prefix, coded)
	}

	entry, ok := leadingSentinel(err)
	if !ok {
		entry = errorEntry{sentinel: ErrInternal, code: "15000", kind: ErrorKindServer}
	}

	var cause error
	if err != entry.sentinel {
		cause = err
	}
	return &RecoveryError{
		code:     QualifyErrorCode(prefix, entry.code),
		kind:     entry.kind,
		sentinel: entry.sentinel,
		cause:    cause,
	}
}

func leadingSentinel(err error) (errorEntry, bool) {
	for err != nil {
		for _, entry := range errorCatalog {
			if err == entry.sentinel {
				return entry, true
			}
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return errorEntry{}, false
			}
			err = errs[0]
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return errorEntry{}, false
		}
	}
	return errorEntry{}, false
}

func leadingRecoveryError(err error) *RecoveryError {
	for err != nil {
		if re, ok := err.(*RecoveryError); ok {
			return re
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return nil
			}
			err = errs[0]
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
