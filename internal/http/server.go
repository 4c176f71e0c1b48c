package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	applog "agfdash/internal/log"
	"agfdash/internal/middleware/auth"
	"agfdash/internal/middleware/ratelimit"
	"agfdash/internal/middleware/security"
	"agfdash/internal/middleware/trace"
	"agfdash/internal/services"
)

// ReportBuilder runs the dashboard pipeline for one entity.
type ReportBuilder interface {
	Build(ctx context.Context, entityID string) (*services.Result, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Options configures the server. Zero values disable the optional layers.
type Options struct {
	// RequestTimeout bounds one dashboard build (default: 60s)
	RequestTimeout time.Duration

	// RateLimitPerMinute per client IP on /api; zero disables limiting
	RateLimitPerMinute int

	// JWTSecret enables bearer auth on /api when set
	JWTSecret string

	Logger      *applog.Logger
	ReadyChecks map[string]ReadyCheck
}

type Server struct {
	http.Server
	reports    ReportBuilder
	options    Options
	logger     *applog.Logger
	structured *applog.StructuredLogger
	detector   *security.Detector
	limiter    *ratelimit.Limiter
	verifier   *auth.Verifier

	started      time.Time
	shuttingDown atomic.Bool
}

// NewServer builds the router and returns a server listening on addr once
// ListenAndServe is called.
func NewServer(addr string, reports ReportBuilder, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		reports:    reports,
		options:    opts,
		logger:     logger,
		structured: applog.NewStructuredLogger(logger),
		detector:   security.NewDetector(),
		started:    time.Now(),
	}
	if opts.RateLimitPerMinute > 0 {
		s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute})
	}
	if opts.JWTSecret != "" {
		s.verifier = auth.NewVerifier(opts.JWTSecret)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The build itself is bounded by RequestTimeout.
		WriteTimeout: opts.RequestTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.logger).Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.flagSuspicious)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	// Probes stay outside /api so they are never limited or authenticated.
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited))
		}
		if s.verifier != nil {
			r.Use(s.verifier.Middleware(entityParams, s.authFailed))
		}
		r.Get("/dash-data", s.handleDashData)
	})
	return r
}

// flagSuspicious logs probing requests and lets them through to routing.
func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded")
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, status int, err error) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Request rejected",
		applog.FieldStatusCode, status,
		applog.FieldErrorType, applog.ErrorTypeAuth,
		applog.FieldError, err.Error())
	code := codeUnauthorized
	if status == http.StatusForbidden {
		code = codeForbidden
	}
	writeError(w, status, code, err.Error())
}

// Shutdown marks the server not ready, drains connections and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)
	err := s.Server.Shutdown(ctx)
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return err
}
