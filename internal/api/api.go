// Package api provides the HTTP API server for the Gantz gateway.
//
// @title Gantz Gateway API
// @version 1.0
// @description Gantz is a secure multi-tenant gateway that serves versioned tools to MCP agents.
//
// @host localhost:8585
// @BasePath /api/v1
// @schemes http https
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Bearer token authentication
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	v1 "github.com/gantz-ai/gantz/internal/api/v1"
	"github.com/gantz-ai/gantz/internal/config"
	"github.com/gantz-ai/gantz/internal/db"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/internal/version"
)

type Server struct {
	cfg        *config.Config
	db         db.Database
	repos      *repositories.Repositories
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	tokens     *tokens.Store
	httpServer *http.Server
	localMode  bool
}

// New creates the API server.
func New(cfg *config.Config, database db.Database, repos *repositories.Repositories, dispatcher *dispatch.Dispatcher, reg *registry.Registry, tokenStore *tokens.Store, localMode bool) *Server {
	return &Server{
		cfg:        cfg,
		db:         database,
		repos:      repos,
		dispatcher: dispatcher,
		registry:   reg,
		tokens:     tokenStore,
		localMode:  localMode,
	}
}

// Start runs the HTTP server until ctx is cancelled, then drains with a
// bounded shutdown.
func (s *Server) Start(ctx context.Context) error {
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.APIPort),
		Handler: router,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("API server error: %v", err)
		}
	}()
	logging.Info("API server listening on :%d", s.cfg.APIPort)

	<-ctx.Done()

	logging.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// buildRouter assembles middleware and routes. Split out so tests can
// drive the full router without binding a port.
func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	// Request log, debug level so normal serving stays quiet.
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Gantz-Budget-Ms, X-Gantz-No-Cache")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", s.healthCheck)

	handlers := v1.NewAPIHandlers(s.repos, s.dispatcher, s.registry, s.tokens, s.localMode)
	handlers.RegisterRoutes(router.Group("/api/v1"))

	// MCP-compat aliases: agents speak these paths directly.
	handlers.RegisterCompatRoutes(router.Group("/mcp"))

	return router
}

// healthCheck reports liveness plus a database ping.
func (s *Server) healthCheck(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Conn().PingContext(ctx); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": "gantz-gateway",
		"version": version.GetVersion(),
		"db":      dbStatus,
		"tools":   s.registry.Len(),
	})
}
