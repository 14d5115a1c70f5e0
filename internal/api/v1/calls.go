package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/auth"
	"github.com/gantz-ai/gantz/internal/dispatch"
)

// Budget and cache-bypass headers on the call endpoint.
const (
	headerBudgetMS = "X-Gantz-Budget-Ms"
	headerNoCache  = "X-Gantz-No-Cache"
)

type callRequest struct {
	Tool    string                 `json:"tool" binding:"required"`
	Version string                 `json:"version,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// callTool handles a tool invocation.
// @Summary Call a tool
// @Description Dispatches one tool invocation through auth, resolution, validation, cache, and execution
// @Tags Tools
// @Accept json
// @Produce json
// @Param request body callRequest true "Tool call"
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,403,404,500,503,504 {object} map[string]interface{}
// @Router /tools/call [post]
func (h *APIHandlers) callTool(c *gin.Context) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"kind": "bad_request", "message": "invalid request body: " + err.Error()},
		})
		return
	}

	budget, ok := parseBudgetHeader(c)
	if !ok {
		return
	}

	resp, err := h.dispatcher.Dispatch(c.Request.Context(), auth.BearerToken(c), dispatch.Request{
		Tool:        req.Tool,
		Version:     req.Version,
		Params:      req.Params,
		Budget:      budget,
		BypassCache: bypassRequested(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"request_id":  resp.RequestID,
		"tool":        resp.Result.ToolName,
		"version":     resp.Result.ToolVersion,
		"result":      resp.Result.Output,
		"duration_ms": resp.Result.DurationMS,
	}
	if resp.Result.Cached {
		body["cached"] = true
	}
	if len(resp.Warnings) > 0 {
		body["deprecation_warning"] = gin.H{"message": resp.Warnings[0]}
	}

	c.JSON(http.StatusOK, body)
}

// parseBudgetHeader reads the optional budget override. A malformed or
// non-positive value is a client error; the server max is applied inside
// the dispatcher.
func parseBudgetHeader(c *gin.Context) (time.Duration, bool) {
	header := c.GetHeader(headerBudgetMS)
	if header == "" {
		return 0, true
	}

	ms, err := strconv.ParseInt(header, 10, 64)
	if err != nil || ms <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"kind": "bad_request", "message": "invalid " + headerBudgetMS + " header"},
		})
		return 0, false
	}

	return time.Duration(ms) * time.Millisecond, true
}

func bypassRequested(c *gin.Context) bool {
	switch c.GetHeader(headerNoCache) {
	case "1", "true":
		return true
	}
	return false
}
