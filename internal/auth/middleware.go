package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/models"
)

const tokenContextKey = "token"

// AuthMiddleware provides bearer token authentication for the management
// endpoints. The tool call path authenticates inside the dispatcher
// instead, so its error taxonomy stays in one place.
type AuthMiddleware struct {
	store     *tokens.Store
	localMode bool
}

// NewAuthMiddleware creates an authentication middleware.
func NewAuthMiddleware(store *tokens.Store, localMode bool) *AuthMiddleware {
	return &AuthMiddleware{
		store:     store,
		localMode: localMode,
	}
}

// Authenticate validates the bearer token and stores it on the context.
func (am *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Local mode is a single-user deployment with no secrets.
		if am.localMode {
			c.Set(tokenContextKey, &models.Token{
				ID:     "local",
				Name:   "local mode",
				Scopes: models.StringList{tokens.ScopeWildcard},
			})
			c.Next()
			return
		}

		token, err := am.store.Validate(c.Request.Context(), BearerToken(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"kind": dispatch.Kind(err), "message": err.Error()},
			})
			c.Abort()
			return
		}

		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// RequireAdmin ensures the authenticated token carries the admin scope.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := TokenFromContext(c)
		if !ok || !tokens.IsAdmin(token.Scopes) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": gin.H{"kind": dispatch.KindScopeDenied, "message": "admin scope required"},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// BearerToken extracts the presented secret from the Authorization header.
// Missing and empty headers yield "", which the token store classifies as
// a missing token.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return rest
	}
	// A malformed header is presented as-is so it classifies as invalid
	// rather than missing.
	return header
}

// TokenFromContext extracts the authenticated token from the gin context.
func TokenFromContext(c *gin.Context) (*models.Token, bool) {
	value, exists := c.Get(tokenContextKey)
	if !exists {
		return nil, false
	}

	token, ok := value.(*models.Token)
	return token, ok
}
