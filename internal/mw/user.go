package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// UserHeader carries the caller's identity, set by the gateway in front of
// the engine.
const UserHeader = "X-User-ID"

const userKey = "userID"

// RequireUser rejects requests without a user id and stores it on the context.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header is required"})
			return
		}
		if len(id) > 64 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user id is too long"})
			return
		}
		c.Set(userKey, id)
		c.Next()
	}
}

// UserID returns the id stored by RequireUser, or "" outside it.
func UserID(c *gin.Context) string {
	return c.GetString(userKey)
}
