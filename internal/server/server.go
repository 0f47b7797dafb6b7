package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/epubaudio/internal/api"
	"github.com/jackzampolin/epubaudio/internal/config"
	"github.com/jackzampolin/epubaudio/internal/home"
	"github.com/jackzampolin/epubaudio/internal/jobs"
	"github.com/jackzampolin/epubaudio/internal/providers"
	"github.com/jackzampolin/epubaudio/internal/server/endpoints"
	"github.com/jackzampolin/epubaudio/internal/svcctx"
	"github.com/jackzampolin/epubaudio/internal/voices"
)

// Server is the reference conversion backend. It extracts EPUB text,
// runs text to speech jobs, and serves the finished audio.
type Server struct {
	httpServer *http.Server
	jobManager *jobs.Manager
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
	ready   bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: backend.host)
	Host string
	// Port is the port to listen on (default: backend.port)
	Port int
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is where finished audio is written
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	current := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = current.Backend.Host
	}
	if cfg.Port == 0 {
		cfg.Port = current.Backend.Port
	}

	registry, err := providers.NewRegistryFromConfig(current.ToProviderRegistryConfig(), cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider registry: %w", err)
	}
	if _, err := registry.GetTTS(current.Backend.TTSProvider); err != nil {
		cfg.Logger.Warn("configured TTS provider is unavailable; conversions will be rejected",
			"provider", current.Backend.TTSProvider)
	}

	catalog := voices.NewCatalog(voices.Config{Registry: registry, Logger: cfg.Logger})

	// Watch for config changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		if err := registry.Reload(c.ToProviderRegistryConfig()); err != nil {
			cfg.Logger.Error("provider registry reload failed", "error", err)
			return
		}
		catalog.Invalidate()
		cfg.Logger.Info("provider registry reloaded from config")
	})

	jobManager := jobs.NewManager(jobs.ManagerConfig{
		Workers: current.Backend.Workers,
		Logger:  cfg.Logger,
	})

	s := &Server{
		jobManager: jobManager,
		registry:   registry,
		configMgr:  cfg.ConfigManager,
		home:       cfg.Home,
		logger:     cfg.Logger,
	}

	s.services = &svcctx.Services{
		JobManager: jobManager,
		Registry:   registry,
		Config:     cfg.ConfigManager,
		Logger:     cfg.Logger,
		Home:       cfg.Home,
		Voices:     catalog,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.withCORS(s.withServices(mux)),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Start starts the job workers and the HTTP server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	jobsCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	s.startJobs(jobsCtx)

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr, "output", s.home.OutputDir())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	s.shutdown(stopJobs)
	return serveErr
}

// startJobs launches the job workers and marks the server ready.
func (s *Server) startJobs(ctx context.Context) {
	s.jobManager.Start(ctx)
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
}

// shutdown stops accepting requests, cancels running jobs and waits for
// the workers to exit.
func (s *Server) shutdown(stopJobs context.CancelFunc) {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	s.ready = false
	s.mu.Unlock()

	stopJobs()
	s.jobManager.Wait()

	s.setNotRunning()
	s.logger.Info("server stopped")
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// JobManager returns the job manager.
func (s *Server) JobManager() *jobs.Manager {
	return s.jobManager
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the server's HTTP handler with services attached.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withCORS adds CORS headers for origins allowed by backend.cors_origins and
// answers browser preflight requests. The setting is read per request so
// config edits apply without a restart.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !originAllowed(s.configMgr.Get().Backend.CORSOrigins, origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")

		// Preflight
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// requireInit is middleware that ensures the job workers are running.
// Returns 503 Service Unavailable otherwise.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.isReady() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
