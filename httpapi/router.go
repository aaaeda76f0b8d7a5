package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/goRecovery/middleware"
)

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// RateLimit is the per-IP request rate for the recovery endpoints in
	// requests per second. Zero disables the in-process limiter.
	RateLimit         float64
	RateBurst         int
	TrustProxyHeaders bool
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Registerer receives the HTTP request collectors when set.
	Registerer   prometheus.Registerer
	HealthChecks map[string]HealthCheck
	Logger       *slog.Logger
}

// Server is the HTTP handler for the recovery API.
type Server struct {
	router  chi.Router
	limiter *middleware.RateLimiter
}

// New builds the router around svc.
func New(svc RecoveryService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestMetadata(middleware.MetadataOptions{TrustProxyHeaders: opts.TrustProxyHeaders}))
	r.Use(middleware.AccessLog(logger))
	if opts.Registerer != nil {
		r.Use(middleware.NewHTTPMetrics(opts.Registerer).Instrument)
	}
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	s := &Server{router: r}
	limit := func(next http.Handler) http.Handler { return next }
	if opts.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
		limit = s.limiter.Limit
	}

	recoveryH := &recoveryHandler{svc: svc, logger: logger.With(slog.String("component", "httpapi"))}
	healthH := &healthHandler{checks: opts.HealthChecks}

	r.Get("/health", healthH.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/recovery", func(r chi.Router) {
		r.Use(limit)
		r.Post("/init", recoveryH.Init)
		r.Post("/validate", recoveryH.Validate)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the rate limiter's cleanup goroutine.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}
