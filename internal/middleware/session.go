package middleware

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys
const (
	SessionUserKey = "user_id"

	// ContextUserKey is where RequireSessionUser places the resolved user id.
	ContextUserKey = "session_user_id"
)

// RequireSessionUser ensures a resource owner was bound to the cookie
// session. Authentication itself happens in the companion login system;
// this only checks the binding.
func RequireSessionUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(SessionUserKey).(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "access_denied",
				"error_description": "No authenticated user bound to this session",
			})
			return
		}
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// SessionUser returns the user id RequireSessionUser resolved for this
// request.
func SessionUser(c *gin.Context) string {
	return c.GetString(ContextUserKey)
}
