package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/docintel/backend/internal/auth"
)

// AuthMiddleware verifies the bearer token on every request and attaches
// the resulting auth.Claims to the gin context, mirroring cmd/main.go's
// stale authMiddleware but delegating verification to the injected
// auth.TokenVerifier (spec's SSE-auth Open Question: the contract is
// "verify a token string", not any particular HTTP-shaping machinery).
func AuthMiddleware(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Next()
	}
}
