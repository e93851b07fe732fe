package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/services"
)

const claimsKey = "jamlink.claims"

// BearerToken extracts the token from the Authorization header, or from the
// token query parameter for websocket upgrades, which cannot set headers
// from a browser.
func BearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware requires a valid access token whose role covers required.
func AuthMiddleware(authService services.AuthService, required domain.ClientRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bearer token required"})
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		if err := authService.CheckPermission(claims, required); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(services.ContextWithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// ClaimsFrom returns the claims stored by AuthMiddleware, if any.
func ClaimsFrom(c *gin.Context) (*services.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*services.Claims)
	return claims, ok
}
