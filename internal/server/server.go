// Package server provides the HTTP API for a long-running redactd
// instance: upload-and-redact, scan-only, output download, and the
// run audit trail.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/smart-redact/redactd/internal/config"
	"github.com/smart-redact/redactd/internal/evidence"
	"github.com/smart-redact/redactd/internal/otel"
	"github.com/smart-redact/redactd/internal/pipeline"
)

const defaultTimeout = 60 * time.Second

// Server holds the dependencies for the HTTP API.
type Server struct {
	router        *chi.Mux
	pipeline      *pipeline.Pipeline
	evidenceStore *evidence.Store
	cfg           *config.Config
	apiKeys       map[string]bool
	limiter       *rate.Limiter
	corsOrigins   []string
	version       string
	startTime     time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithAPIKeys sets the accepted API keys. With no keys configured the
// API is open, which is the expected mode for a localhost instance.
func WithAPIKeys(keys []string) Option {
	return func(s *Server) {
		for _, k := range keys {
			if k != "" {
				s.apiKeys[k] = true
			}
		}
	}
}

// WithCORSOrigins sets allowed CORS origins (e.g. ["*"]).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit caps upload requests at rps sustained with the given
// burst. Zero rps disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithVersion sets the version string reported by /v1/status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer builds a Server around a pipeline, an evidence store and
// the loaded configuration.
func NewServer(p *pipeline.Pipeline, store *evidence.Store, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		pipeline:      p,
		evidenceStore: store,
		cfg:           cfg,
		apiKeys:       make(map[string]bool),
		corsOrigins:   []string{"*"},
		startTime:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler. Upload routes have no
// request timeout (large PDFs with OCR can run long) but carry the
// rate limiter; everything else gets the default 60s timeout.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(CORSMiddleware(s.corsOrigins))

	// Unauthenticated
	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.limiter))
			r.Post("/v1/redact", s.handleRedact)
			r.Post("/v1/scan", s.handleScan)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/status", s.handleStatus)
			r.Get("/v1/outputs/{name}", s.handleDownload)

			r.Get("/v1/runs", s.handleRunsList)
			r.Get("/v1/runs/summary", s.handleRunsSummary)
			r.Get("/v1/runs/{id}", s.handleRunGet)
			r.Get("/v1/runs/{id}/verify", s.handleRunVerify)
			r.Post("/v1/runs/export", s.handleRunsExport)
		})
	})

	return r
}
