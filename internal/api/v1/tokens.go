package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/tokens"
)

type issueTokenRequest struct {
	Name       string   `json:"name" binding:"required"`
	Scopes     []string `json:"scopes" binding:"required"`
	TTLSeconds int64    `json:"ttl_seconds,omitempty"`
}

// issueToken mints a new API token. The secret appears exactly once in
// this response; only its digest is stored.
// @Summary Issue a token
// @Tags Tokens
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Router /tokens [post]
func (h *APIHandlers) issueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"kind": "bad_request", "message": "invalid request body: " + err.Error()},
		})
		return
	}

	var ttl time.Duration
	if req.TTLSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"kind": "bad_request", "message": "ttl_seconds must not be negative"},
		})
		return
	}
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	secret, token, err := h.tokens.Issue(c.Request.Context(), req.Name, req.Scopes, ttl)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token":      secret,
		"id":         token.ID,
		"name":       token.Name,
		"scopes":     token.Scopes,
		"expires_at": token.ExpiresAt,
	})
}

// listTokens lists issued tokens. Secrets are never included; the store
// only holds digests.
// @Summary List tokens
// @Tags Tokens
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /tokens [get]
func (h *APIHandlers) listTokens(c *gin.Context) {
	list, err := h.tokens.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tokens": list,
		"count":  len(list),
	})
}

// revokeToken revokes a token by id. Revocation is idempotent.
// @Summary Revoke a token
// @Tags Tokens
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /tokens/{id} [delete]
func (h *APIHandlers) revokeToken(c *gin.Context) {
	id := c.Param("id")

	if err := h.tokens.Revoke(c.Request.Context(), id); err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{"kind": "token_not_found", "message": "no token with id " + id},
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": true, "id": id})
}
