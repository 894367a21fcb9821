package handlers

import (
	"errors"
	"net/http"

	"github.com/go-authgate/oauthd/internal/middleware"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionHandler binds an out-of-band authenticated resource owner into the
// cookie session. The companion login system performs the actual
// authentication and calls this endpoint with the resulting user id.
type SessionHandler struct {
	store *store.Store
}

func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// Bind attaches a user id to the session after checking the user exists.
func (h *SessionHandler) Bind(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "user_id is required",
		})
		return
	}

	if _, err := h.store.GetUserByUserID(userID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, userID)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID})
}

// Unbind clears the session's user binding.
func (h *SessionHandler) Unbind(c *gin.Context) {
	session := sessions.Default(c)
	session.Delete(middleware.SessionUserKey)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.Status(http.StatusNoContent)
}
