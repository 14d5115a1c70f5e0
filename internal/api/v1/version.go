package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/version"
)

// getVersion returns build information.
func (h *APIHandlers) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}
