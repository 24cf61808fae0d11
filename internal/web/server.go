// Package web provides the HTTP API for submitting meter files and reading
// back stored readings and ingest history.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/meterload/internal/config"
	"github.com/JonMunkholm/meterload/internal/core"
	"github.com/JonMunkholm/meterload/internal/web/middleware"
)

// Ingester is the part of core.Service the handlers use.
type Ingester interface {
	Ingest(ctx context.Context, req core.IngestRequest) (*core.IngestResult, error)
	History(ctx context.Context, meterName string, limit int) ([]core.IngestRecord, error)
	Readings(ctx context.Context, meterName string, from, to time.Time) ([]core.Reading, error)
	Meter(ctx context.Context, meterName string) (core.Meter, error)
	LimiterStatus() core.LimiterStatus
}

// Options configures a Server.
type Options struct {
	Server      config.ServerConfig
	MaxFileSize int64

	// MetricsPath mounts a Prometheus handler for Gatherer. Empty disables it.
	MetricsPath string
	Gatherer    prometheus.Gatherer
}

// Server is the HTTP server for the ingest API.
type Server struct {
	service  Ingester
	profiles *config.Profiles
	opts     Options
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service Ingester, profiles *config.Profiles, opts Options) *Server {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 100 << 20
	}
	s := &Server{
		service:  service,
		profiles: profiles,
		opts:     opts,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.opts.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.opts.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	if s.opts.MetricsPath != "" && s.opts.Gatherer != nil {
		s.router.Handle(s.opts.MetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/meters", s.handleListMeters)
		r.Route("/meters/{meterName}", func(r chi.Router) {
			r.Get("/", s.handleGetMeter)
			r.Post("/readings", s.handleIngest)
			r.Get("/readings", s.handleListReadings)
			r.Get("/ingests", s.handleIngestHistory)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	cfg := s.opts.Server
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", cfg.Addr())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are only logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
