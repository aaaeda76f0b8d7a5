// Package goRecovery provides the core of a self-service account recovery
// service: it identifies an account from user-supplied claims, refuses
// accounts that are disabled or locked, selects the notification channels the
// user may be contacted on and issues a single active recovery code per
// account.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goRecovery is the public surface. It exposes [Engine], [Builder], [Config], the
// collaborator interfaces ([Directory], [AccountStatusProvider], [TenantResolver],
// [NotificationPolicy], [RecoveryStore]) and value types (RecoveryChannelInfo,
// RecoveryRecord, MetricsSnapshot). Flow orchestration, the Redis record store,
// rate limiting and audit dispatch live under internal/ and are never exported.
//
// # Errors
//
// Every failure returned by an Engine method is a [*RecoveryError]. Client errors
// carry a scenario-qualified code (for example "UAR-10003") and a message safe to
// show to end users. Server errors carry [GenericServerMessage] publicly and keep
// the underlying cause reachable through errors.Is and errors.As.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports goRecovery (no import cycles).
//   - Return unmasked channel values from ResolveRecovery.
package goRecovery
