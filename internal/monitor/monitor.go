// Package monitor serves the read-only observation endpoints: process
// health, a session status document, and Prometheus metrics. It binds
// to localhost by default; nothing here mutates the session.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// StatusFunc produces the current session status document. It is
// called per request, so implementations must be safe for concurrent
// use.
type StatusFunc func() any

// ProviderStatesFunc reports data-provider circuit state by provider
// name, folded into the health payload. Nil disables the field.
type ProviderStatesFunc func() map[string]string

// Config holds server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig binds local-only.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:9465",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the observation HTTP server.
type Server struct {
	router    *mux.Router
	server    *http.Server
	status    StatusFunc
	providers ProviderStatesFunc
	started   time.Time
}

// NewServer wires the routes. The metrics handler is injected so this
// package stays ignorant of what is being measured.
func NewServer(cfg Config, status StatusFunc, providers ProviderStatesFunc, metricsHandler http.Handler) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	s := &Server{
		router:    mux.NewRouter(),
		status:    status,
		providers: providers,
		started:   time.Now(),
	}
	s.setupRoutes(metricsHandler)
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.Handle("/metrics", metricsHandler).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
	}
	if s.providers != nil {
		body["providers"] = s.providers()
	}
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.status()); err != nil {
		http.Error(w, `{"error":"status encode failed"}`, http.StatusInternalServerError)
	}
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("monitor server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("monitor request")
	})
}
