package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
)

// Loaders attaches a fresh set of batch loaders to every request.
func Loaders(store loaders.Store, cfg loaders.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := loaders.New(store, cfg)
		c.Request = c.Request.WithContext(loaders.WithLoaders(c.Request.Context(), l))
		c.Next()
	}
}
