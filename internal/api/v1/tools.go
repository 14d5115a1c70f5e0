package v1

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/auth"
	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/params"
)

type toolSummary struct {
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	Description   string          `json:"description,omitempty"`
	Params        json.RawMessage `json:"params,omitempty"`
	Cacheable     bool            `json:"cacheable,omitempty"`
	Deprecated    bool            `json:"deprecated,omitempty"`
	RequiredScope string          `json:"required_scope,omitempty"`
}

// listTools returns the catalog visible to the caller's scopes.
// @Summary List tools
// @Description Lists registered tools ordered by name then version, filtered to the caller's scopes
// @Tags Tools
// @Produce json
// @Param filter query string false "Substring filter on name and description"
// @Success 200 {object} map[string]interface{}
// @Failure 401,403 {object} map[string]interface{}
// @Router /tools [get]
func (h *APIHandlers) listTools(c *gin.Context) {
	token, ok := auth.TokenFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"kind": dispatch.KindTokenMissing, "message": "authentication required"},
		})
		return
	}

	if !tokens.CanReadTools(token.Scopes) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{"kind": dispatch.KindScopeDenied, "message": "token cannot list tools"},
		})
		return
	}

	filter := strings.ToLower(c.Query("filter"))

	summaries := make([]toolSummary, 0)
	for tool := range h.registry.List() {
		if !tokens.VisibleTool(token.Scopes, tool.Name) {
			continue
		}
		if filter != "" &&
			!strings.Contains(strings.ToLower(tool.Name), filter) &&
			!strings.Contains(strings.ToLower(tool.Description), filter) {
			continue
		}

		summary := toolSummary{
			Name:          tool.Name,
			Version:       tool.Version,
			Description:   tool.Description,
			Cacheable:     tool.Cacheable,
			Deprecated:    tool.Deprecated,
			RequiredScope: tool.RequiredScope,
		}
		if len(tool.Params) > 0 {
			schema, err := params.JSONSchema(tool.Params)
			if err != nil {
				logging.Debug("Schema derivation for %s@%s failed: %v", tool.Name, tool.Version, err)
			} else {
				summary.Params = schema
			}
		}

		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{
		"tools": summaries,
		"count": len(summaries),
	})
}
