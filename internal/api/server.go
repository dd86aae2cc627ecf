package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docmentor/docmentor/internal/agent"
	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/llm"
	"github.com/docmentor/docmentor/internal/pipeline"
)

// Version is reported by the health endpoint
var Version = "0.1.0"

const requestIDHeader = "X-Request-ID"

// Server represents the HTTP API server
type Server struct {
	config   *config.Config
	router   *gin.Engine
	pipeline *pipeline.Pipeline
	chat     llm.ChatClient
	qa       *agent.RAGAgent
	logger   *slog.Logger

	sessions map[string]*Session
	mu       sync.RWMutex
}

// Session is a chat conversation with its own history
type Session struct {
	ID        string
	Agent     *agent.RAGAgent
	CreatedAt time.Time
	LastUsed  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, p *pipeline.Pipeline, chat llm.ChatClient, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	generator := cfg.Generator
	generator.Mode = string(agent.ModeQA)
	qa, err := agent.NewRAGAgent(p, chat, generator, agent.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		router:   gin.New(),
		pipeline: p,
		chat:     chat,
		qa:       qa,
		logger:   logger,
		sessions: make(map[string]*Session),
	}

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// document ids are file paths; match them escaped so "/" survives as %2F
	s.router.UseRawPath = true
	s.router.UnescapePathValues = true

	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Use(corsMiddleware())

	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/stats", s.handleStats)

		// Documents
		v1.GET("/documents", s.handleListDocuments)
		v1.POST("/documents", s.handleAddDocument)
		v1.GET("/documents/:id", s.handleGetDocument)
		v1.DELETE("/documents/:id", s.handleDeleteDocument)

		// Retrieval
		v1.POST("/search", s.handleSearch)
		v1.PUT("/settings/top_k", s.handleUpdateTopK)

		// Session management
		v1.POST("/sessions", s.handleCreateSession)
		v1.GET("/sessions/:id", s.handleGetSession)
		v1.DELETE("/sessions/:id", s.handleDeleteSession)

		// Chat endpoints
		v1.POST("/chat", s.handleChat)
		v1.GET("/chat/stream", s.handleChatStream)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down API server")
	return srv.Shutdown(shutdownCtx)
}

// requestIDMiddleware tags every request with an id, reusing the caller's when given
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware logs one line per request
func loggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
