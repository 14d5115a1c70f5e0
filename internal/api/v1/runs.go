package v1

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/db/repositories"
)

// listRuns returns recent run records, newest first.
// @Summary List runs
// @Tags Runs
// @Produce json
// @Param tool query string false "Filter by tool name"
// @Param status query string false "Filter by terminal state"
// @Param limit query int false "Row limit (default 50)"
// @Success 200 {object} map[string]interface{}
// @Router /runs [get]
func (h *APIHandlers) listRuns(c *gin.Context) {
	filter := repositories.RunFilter{
		Tool:  c.Query("tool"),
		State: c.Query("status"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"kind": "bad_request", "message": "limit must be a positive integer"},
			})
			return
		}
		filter.Limit = limit
	}

	runs, err := h.repos.Runs.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// getRun returns one run record by id.
// @Summary Get a run
// @Tags Runs
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /runs/{id} [get]
func (h *APIHandlers) getRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.repos.Runs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"kind": "run_not_found", "message": "no run with id " + id},
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, run)
}
