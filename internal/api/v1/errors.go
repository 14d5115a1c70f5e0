package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/dispatch"
)

// statusCanceled mirrors the nginx convention for a client that closed
// the connection before the response was written.
const statusCanceled = 499

// statusForKind maps a taxonomy kind onto its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case dispatch.KindTokenMissing, dispatch.KindTokenInvalid, dispatch.KindTokenExpired, dispatch.KindTokenRevoked:
		return http.StatusUnauthorized
	case dispatch.KindScopeDenied:
		return http.StatusForbidden
	case dispatch.KindUnknownTool, dispatch.KindUnknownVersion:
		return http.StatusNotFound
	case dispatch.KindInvalidVersion, dispatch.KindMissingRequired, dispatch.KindTypeMismatch:
		return http.StatusBadRequest
	case dispatch.KindDuplicateVersion:
		return http.StatusConflict
	case dispatch.KindTimeout:
		return http.StatusGatewayTimeout
	case dispatch.KindResourceExhausted:
		return http.StatusServiceUnavailable
	case dispatch.KindCanceled:
		return statusCanceled
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the structured error body. Every failure carries a
// machine-readable kind and a human-readable message; internals never
// leak stack traces.
func respondError(c *gin.Context, err error) {
	kind := dispatch.Kind(err)
	c.JSON(statusForKind(kind), gin.H{
		"error": gin.H{
			"kind":    kind,
			"message": err.Error(),
		},
	})
}
