package handlers

import (
	"errors"
	"net/http"

	"github.com/go-authgate/oauthd/internal/middleware"
	"github.com/go-authgate/oauthd/internal/services"

	"github.com/gin-gonic/gin"
)

// ResourceHandler serves resource server registration and delegated token
// minting.
type ResourceHandler struct {
	resources *services.ResourceService
}

func NewResourceHandler(resources *services.ResourceService) *ResourceHandler {
	return &ResourceHandler{resources: resources}
}

type resourceRegistrationRequest struct {
	BaseURL string `json:"base_url" binding:"required"`
	Scope   string `json:"scope"`
}

// Register creates a resource server. The secret in the response is shown
// once and never again.
func (h *ResourceHandler) Register(c *gin.Context) {
	var req resourceRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	resp, err := h.resources.Register(c.Request.Context(), req.BaseURL, req.Scope)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidClientMetadata):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		case errors.Is(err, services.ErrBaseURLTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "invalid_request",
				"error_description": "base_url is already registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// MintUserToken mints a delegated token for the session user, addressed to
// the resource server named by resource_id. The session binding stands in
// for the resource owner's consent to the delegation.
func (h *ResourceHandler) MintUserToken(c *gin.Context) {
	serverID := c.Query("resource_id")
	if serverID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "resource_id is required",
		})
		return
	}

	userID := middleware.SessionUser(c)
	signed, err := h.resources.MintUserToken(c.Request.Context(), serverID, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrResourceServerNotFound),
			errors.Is(err, services.ErrUserNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": signed})
}
