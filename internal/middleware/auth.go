package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/auth"
)

// UserIDKey is the gin context key holding the authenticated user's id.
const UserIDKey = "user_id"

type TokenValidator interface {
	Validate(token string) (int, error)
}

// Session resolves the caller from a bearer token or the session cookie.
// Anonymous requests pass through without a user id; invalid credentials
// are treated as anonymous too.
func Session(validator TokenValidator, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := sessionToken(c, cookieName)
		if token == "" {
			c.Next()
			return
		}

		userID, err := validator.Validate(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				logger.Info("session token expired", zap.Error(err))
			} else {
				logger.Warn("session token rejected", zap.Error(err))
			}
			c.Next()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func sessionToken(c *gin.Context, cookieName string) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if cookieName == "" {
		return ""
	}
	cookie, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return cookie
}

// AuthMiddleware rejects requests that Session did not authenticate.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		c.Next()
	}
}

// CurrentUserID returns the authenticated user's id, or 0 for anonymous requests.
func CurrentUserID(c *gin.Context) int {
	return c.GetInt(UserIDKey)
}
