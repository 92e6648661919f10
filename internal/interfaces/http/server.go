// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/docflow/internal/application/service"
	"github.com/garyjia/docflow/internal/application/workflow"
	"github.com/garyjia/docflow/internal/observability/metrics"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxUploadBytes  int64

	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		AllowedOrigins:  []string{"*"},
		MaxUploadBytes:  20 << 20,
	}
}

// Deps are the application components served over HTTP
type Deps struct {
	Documents  service.DocumentService
	Audit      service.AuditService
	Engine     workflow.WorkflowEngine
	Routes     RouteRegistry
	Statistics StatisticsProvider
	Workbook   WorkbookRenderer
	Health     HealthChecker
	Auth       *Authenticator
	// Metrics is optional
	Metrics *metrics.Metrics
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	logger     Logger
}

// NewServer creates a new HTTP server with the given components
func NewServer(config ServerConfig, deps Deps, logger Logger) (*Server, error) {
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Documents == nil || deps.Engine == nil || deps.Audit == nil {
		return nil, fmt.Errorf("document service, audit service and engine are required")
	}

	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}
	s.router.Use(corsMiddleware(s.config.AllowedOrigins))
	if s.config.RateLimitEnabled {
		s.router.Use(NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst).Middleware())
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", h.Health)
	s.router.GET("/ready", h.Ready)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := s.router.Group("/api/v1", s.deps.Auth.Middleware())
	{
		api.POST("/documents", h.CreateDocument)
		api.GET("/documents", h.ListDocuments)
		api.GET("/documents/:id", h.GetDocument)
		api.POST("/documents/:id/submit", h.SubmitDocument)
		api.POST("/documents/:id/approve", h.ApproveDocument)
		api.POST("/documents/:id/reject", h.RejectDocument)
		api.POST("/documents/:id/reopen", h.ReopenDocument)
		api.POST("/documents/:id/archive", h.ArchiveDocument)
		api.POST("/documents/:id/assign", h.AssignDocument)
		api.POST("/documents/:id/attachments", h.UploadAttachment)
		api.GET("/documents/:id/history", h.DocumentHistory)

		api.GET("/assignments", h.ListAssignments)
		api.POST("/assignments/:id/accept", h.AcceptAssignment)
		api.POST("/assignments/:id/start", h.StartAssignment)
		api.POST("/assignments/:id/complete", h.CompleteAssignment)
		api.POST("/assignments/:id/reject", h.RejectAssignment)

		api.GET("/routes", h.ListRoutes)
		api.POST("/routes", requireAdmin(), h.AddRouteStep)
		api.DELETE("/routes/:id", requireAdmin(), h.RemoveRouteStep)

		api.GET("/statistics", h.Statistics)
		api.GET("/statistics/export", h.ExportStatistics)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
