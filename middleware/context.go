package middleware

import (
	"net"
	"net/http"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	goRecovery "github.com/MrEthical07/goRecovery"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// MetadataOptions configures RequestMetadata.
type MetadataOptions struct {
	// TrustProxyHeaders takes the client IP from X-Forwarded-For or X-Real-IP.
	// Enable only behind a proxy that overwrites these headers.
	TrustProxyHeaders bool
}

// RequestMetadata attaches the client IP and a request id to the request context.
// The request id is taken from the X-Request-ID header, then from chi's
// RequestID middleware, and generated otherwise. It is echoed in the response.
func RequestMetadata(opts MetadataOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if requestID == "" {
				requestID = chimiddleware.GetReqID(ctx)
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			ctx = goRecovery.WithRequestID(ctx, requestID)
			ctx = goRecovery.WithClientIP(ctx, ClientIP(r, opts.TrustProxyHeaders))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the caller address of r without the port.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
