// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunResolveRecovery, RunResolveUsername,
// RunSelectChannels, RunIssueRecoveryCode, RunValidateRecoveryCode, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. Sentinel errors are passed in through the deps so
// the root package can map them without an import cycle.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the directory, account status provider,
// recovery store, rate limiter, audit dispatcher, and metrics. They do NOT own
// any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goRecovery (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency closures.
package flows
