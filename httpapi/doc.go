// Package httpapi exposes a goRecovery Engine over HTTP with a chi router.
//
// Routes:
//
//	POST /v1/recovery/init      resolve claims and issue a recovery code
//	POST /v1/recovery/validate  validate a recovery code for a step
//	GET  /health                liveness plus optional dependency checks
//	GET  /metrics               Prometheus text exposition, when configured
//
// Failures use the envelope {"error": ..., "code": ...}. Server-side failures
// always carry the generic public message; the cause is only logged.
package httpapi
