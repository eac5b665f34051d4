package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
)

const (
	userIDKey = "userId"
	emailKey  = "email"
	tokenKey  = "token"
)

// IdentityVerifier resolves a bearer token to the signed-in identity.
type IdentityVerifier interface {
	CurrentIdentity(ctx context.Context, token string) (*directory.Claims, error)
}

func AuthMiddleware(verifier IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			RespondWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := verifier.CurrentIdentity(c.Request.Context(), parts[1])
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				c.Header("Retry-After", "1")
				RespondWithError(c, http.StatusServiceUnavailable, "Session store unavailable")
			} else {
				RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			}
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.AccountID)
		c.Set(emailKey, claims.Email)
		c.Set(tokenKey, parts[1])
		c.Next()
	}
}

func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(userIDKey)
	return id, id != ""
}

// GetToken returns the raw bearer token accepted by AuthMiddleware.
func GetToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
