// Package internal contains helpers private to goRecovery, currently the
// recovery code generators (UUID, ULID and 256-bit token).
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: Redis fixed-window limiter for recovery attempts
//   - stores: Redis-backed recovery record store
//   - appconfig: TOML, dotenv and environment configuration for cmd/gorecovery
//   - logger: process-wide slog setup
//
// # What this package must NOT do
//
//   - Export types that appear in the public goRecovery API.
//   - Be imported by any package outside the goRecovery module.
package internal
