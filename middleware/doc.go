// Package middleware holds the net/http middleware that sits in front of the
// goRecovery HTTP API.
//
// # Request metadata
//
// [RequestMetadata] resolves the caller IP and a request id and attaches them
// with goRecovery.WithClientIP and goRecovery.WithRequestID, so the Engine's
// rate limiter, audit events and log lines see the same values.
//
// # Rate limiting
//
// [RateLimiter] is a per-IP token bucket kept in process memory. It is a coarse
// front-door guard; the Engine's Redis limiter still applies per tenant.
//
// # Observability
//
// [AccessLog] writes one slog record per request. [HTTPMetrics] counts
// requests and observes their duration with prometheus/client_golang.
//
// This package makes no recovery decisions. Everything beyond pass or reject
// is delegated to the Engine.
package middleware
