package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAdminToken carries the operator token for retrieval routes.
const HeaderAdminToken = "X-Admin-Token"

// AdminToken guards a route group with a shared secret. An empty token
// disables the guard so retrieval stays open when ADMIN_TOKEN is unset.
func AdminToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(HeaderAdminToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			LoggerFrom(c).Warn().Msg("admin token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "unauthorized",
				"error":      "Unauthorized",
			})
			return
		}
		c.Next()
	}
}
