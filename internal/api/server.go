// Package api provides the daemon's HTTP status server. It reports scheduler
// state and recent run results, accepts manual run requests and exposes
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anstrom/openvas-reporter/internal/api/middleware"
	"github.com/anstrom/openvas-reporter/internal/logging"
	"github.com/anstrom/openvas-reporter/internal/metrics"
	"github.com/anstrom/openvas-reporter/internal/orchestrator"
	"github.com/anstrom/openvas-reporter/internal/scheduler"
)

// Server timeout constants.
const (
	defaultShutdownTimeout = 30 * time.Second
	defaultRunsLimit       = 20
)

// Scheduler is the part of the scheduler the server reads and triggers.
type Scheduler interface {
	Status() scheduler.Status
	History() []*orchestrator.Result
	Trigger() error
}

// Config holds API server configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns default API server configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            9470,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Server represents the API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
	scheduler  Scheduler
	metrics    *metrics.PrometheusMetrics
	logger     *logging.Logger
	version    string
	startTime  time.Time
	shutdown   time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes m on /metrics and records request metrics into it.
func WithMetrics(m *metrics.PrometheusMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a new API server instance.
func New(cfg Config, sched Scheduler, opts ...Option) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		scheduler: sched,
		logger:    logging.Default(),
		version:   "dev",
		startTime: time.Now(),
		shutdown:  cfg.ShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("api")
	if s.shutdown <= 0 {
		s.shutdown = defaultShutdownTimeout
	}

	s.setupRoutes()
	s.handler = s.setupMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Start serves until ctx is canceled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("API server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return err
	}
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("API server shutdown error", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Handler returns the router wrapped in the server middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// GetAddress returns the server address.
func (s *Server) GetAddress() string {
	return s.httpServer.Addr
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.indexHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/liveness", s.livenessHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.listRunsHandler).Methods(http.MethodGet)
	api.HandleFunc("/runs", s.triggerRunHandler).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", s.getRunHandler).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}
}

// setupMiddleware wraps the router in panic recovery, access logging, request
// IDs, security headers and request metrics.
func (s *Server) setupMiddleware(router *mux.Router) http.Handler {
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	if s.metrics != nil {
		router.Use(middleware.Metrics(s.metrics))
	}

	var h http.Handler = router
	h = handlers.CombinedLoggingHandler(accessLog{s.logger}, h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLog{s.logger}),
		handlers.PrintRecoveryStack(false),
	)(h)
	return h
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "openvas-reporter",
		"version": s.version,
		"endpoints": map[string]string{
			"liveness": "/api/v1/liveness",
			"status":   "/api/v1/status",
			"runs":     "/api/v1/runs",
			"metrics":  "/metrics",
		},
	})
}

func (s *Server) livenessHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
	})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Timestamp time.Time        `json:"timestamp"`
	Scheduler scheduler.Status `json:"scheduler"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, StatusResponse{
		Service:   "openvas-reporter",
		Version:   s.version,
		Uptime:    time.Since(s.startTime).String(),
		Timestamp: time.Now().UTC(),
		Scheduler: s.scheduler.Status(),
	})
}

// RunsResponse is the body of GET /api/v1/runs.
type RunsResponse struct {
	Runs  []*orchestrator.Result `json:"runs"`
	Total int                    `json:"total"`
}

func (s *Server) listRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", raw))
			return
		}
		limit = n
	}

	history := s.scheduler.History()
	total := len(history)
	if len(history) > limit {
		history = history[:limit]
	}
	s.writeJSON(w, r, http.StatusOK, RunsResponse{Runs: history, Total: total})
}

func (s *Server) getRunHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	for _, result := range s.scheduler.History() {
		if result.ID == id {
			s.writeJSON(w, r, http.StatusOK, result)
			return
		}
	}
	s.writeError(w, r, http.StatusNotFound, fmt.Errorf("run %s not found", id))
}

func (s *Server) triggerRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Trigger(); err != nil {
		if err == scheduler.ErrBusy {
			s.writeError(w, r, http.StatusConflict, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, r, http.StatusAccepted, map[string]interface{}{
		"status":    "accepted",
		"timestamp": time.Now().UTC(),
	})
}

// ErrorResponse represents a standard API error response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, err error) {
	requestID := middleware.GetRequestID(r)
	s.logger.Warn("API error",
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"request_id", requestID,
		"error", err)

	s.writeJSON(w, r, statusCode, ErrorResponse{
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method)
	}
}

// accessLog sends combined log format lines to the structured logger.
type accessLog struct {
	logger *logging.Logger
}

func (a accessLog) Write(p []byte) (int, error) {
	a.logger.Info("HTTP request", "access", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// recoveryLog adapts the structured logger to handlers.RecoveryHandlerLogger.
type recoveryLog struct {
	logger *logging.Logger
}

func (l recoveryLog) Println(v ...interface{}) {
	l.logger.Error("Panic in API handler", "error", fmt.Sprint(v...))
}
