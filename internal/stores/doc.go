// Package stores provides the Redis-backed recovery record store.
//
// # Design
//
// A record is binary-encoded under a code key, and a per-account set indexes
// the account's codes. Writes for an account run in a WATCH/MULTI
// transaction on the account key with retry on contention, so issuing a new
// code and invalidating the previous one never interleave. Records outlive
// their code lifetime by a retention window so that expired codes can be told
// apart from unknown ones.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for recovery records.
// It does NOT generate codes, enforce rate limits or decide whether a record is
// usable for a given step; those belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goRecovery or any sibling internal package.
//   - Log recovery codes or channel values.
package stores
