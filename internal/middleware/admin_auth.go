package middleware

import (
	"net/http"
	"strings"

	"intentrouter/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware guards the admin API with JWT bearer tokens.
type AdminAuthMiddleware struct {
	auth *handlers.AdminAuthHandler
}

func NewAdminAuthMiddleware(auth *handlers.AdminAuthHandler) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{auth: auth}
}

// RequireAdminAuth validates the bearer token and stores the acting admin
// address in the context.
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "MISSING_AUTH_HEADER", "Authentication required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, "INVALID_AUTH_FORMAT", "Invalid authorization format, need Bearer token")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := a.auth.ValidateToken(tokenString)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).WithError(err).Warn("admin auth failed")
			a.reject(c, "INVALID_TOKEN", "Invalid or expired token")
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_address", claims.Address)
		c.Next()
	}
}

func (a *AdminAuthMiddleware) reject(c *gin.Context, code, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
	c.Abort()
}
