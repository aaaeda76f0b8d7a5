// Package limiters provides the Redis fixed-window limiters used by the
// recovery engine.
//
// # Limiters
//
//   - [RecoveryLimiter]: per-claim-fingerprint and per-IP for recovery
//     initiation, per-IP for code validation.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Policy thresholds
// come from Config structs supplied at construction time.
//
// # What this package must NOT do
//
//   - Import goRecovery or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide consequences.
package limiters
