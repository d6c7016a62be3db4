package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aescanero/costume-orders/pkg/domain"
	"github.com/aescanero/costume-orders/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Workflow runs one order creation workflow per call
type Workflow interface {
	CreateOrder(ctx context.Context, in domain.WorkflowInput) *domain.WorkflowResult
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	router   *gin.Engine
	server   *http.Server
	workflow Workflow
	orders   ports.OrderReader
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Addr     string
	Workflow Workflow
	Orders   ports.OrderReader
	Checks   map[string]HealthCheck

	// Metrics defaults to the prometheus default gatherer
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		workflow: cfg.Workflow,
		orders:   cfg.Orders,
		checks:   cfg.Checks,
		logger:   cfg.Logger,
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	s.setupRoutes(metrics)

	s.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return s
}

func (s *Server) setupRoutes(metrics http.Handler) {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics))

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/orders", s.handleCreateOrder)
		v1.GET("/orders/:id", s.handleGetOrder)
	}
}

// SetupWebSocket mounts the live order feed
func (s *Server) SetupWebSocket(handler interface{ HandleOrderStream(*gin.Context) }) {
	s.router.GET("/api/v1/events/ws", handler.HandleOrderStream)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
