package v1

import (
	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/auth"
	"github.com/gantz-ai/gantz/internal/db/repositories"
	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/tokens"
)

// APIHandlers carries the wiring every v1 handler needs.
type APIHandlers struct {
	repos      *repositories.Repositories
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	tokens     *tokens.Store
	localMode  bool
}

// NewAPIHandlers creates the v1 handler set.
func NewAPIHandlers(
	repos *repositories.Repositories,
	dispatcher *dispatch.Dispatcher,
	reg *registry.Registry,
	tokenStore *tokens.Store,
	localMode bool,
) *APIHandlers {
	return &APIHandlers{
		repos:      repos,
		dispatcher: dispatcher,
		registry:   reg,
		tokens:     tokenStore,
		localMode:  localMode,
	}
}

// RegisterRoutes registers all v1 API routes on the given router group.
func (h *APIHandlers) RegisterRoutes(group *gin.RouterGroup) {
	middleware := auth.NewAuthMiddleware(h.tokens, h.localMode)

	// The call path authenticates inside the dispatcher so the full
	// auth taxonomy reaches the wire; no middleware here.
	group.POST("/tools/call", h.callTool)

	toolsGroup := group.Group("/tools")
	toolsGroup.Use(middleware.Authenticate())
	toolsGroup.GET("", h.listTools)

	tokensGroup := group.Group("/tokens")
	tokensGroup.Use(middleware.Authenticate(), middleware.RequireAdmin())
	{
		tokensGroup.POST("", h.issueToken)
		tokensGroup.GET("", h.listTokens)
		tokensGroup.DELETE("/:id", h.revokeToken)
	}

	runsGroup := group.Group("/runs")
	runsGroup.Use(middleware.Authenticate(), middleware.RequireAdmin())
	{
		runsGroup.GET("", h.listRuns)
		runsGroup.GET("/:id", h.getRun)
	}

	group.GET("/version", h.getVersion)
}

// RegisterCompatRoutes registers the MCP-compatible aliases. Agents that
// speak the plain MCP tool-call convention hit these paths directly.
func (h *APIHandlers) RegisterCompatRoutes(group *gin.RouterGroup) {
	middleware := auth.NewAuthMiddleware(h.tokens, h.localMode)

	group.POST("/tools/call", h.callTool)

	toolsGroup := group.Group("/tools")
	toolsGroup.Use(middleware.Authenticate())
	toolsGroup.GET("", h.listTools)
}
