package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/services"

	"github.com/gin-gonic/gin"
)

// ClientHandler serves dynamic client registration and the management
// operations authenticated by the registration access token.
type ClientHandler struct {
	clients *services.ClientService
}

func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

// Register creates a client from submitted metadata. The response is the
// only time the secret and the registration access token are disclosed.
func (h *ClientHandler) Register(c *gin.Context) {
	var meta services.ClientMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata"})
		return
	}

	resp, err := h.clients.Register(c.Request.Context(), &meta)
	if err != nil {
		if errors.Is(err, services.ErrInvalidClientMetadata) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Get returns the authenticated client's current metadata.
func (h *ClientHandler) Get(c *gin.Context) {
	client, ok := h.authenticate(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.clients.Get(client))
}

// Update replaces the authenticated client's metadata. Identity and
// credentials are preserved.
func (h *ClientHandler) Update(c *gin.Context) {
	client, ok := h.authenticate(c)
	if !ok {
		return
	}

	var meta services.ClientMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata"})
		return
	}

	resp, err := h.clients.Update(c.Request.Context(), client, &meta)
	if err != nil {
		if errors.Is(err, services.ErrInvalidClientMetadata) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_client_metadata"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete removes the authenticated client and all its tokens.
func (h *ClientHandler) Delete(c *gin.Context) {
	client, ok := h.authenticate(c)
	if !ok {
		return
	}

	if err := h.clients.Delete(c.Request.Context(), client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// authenticate checks the Bearer registration access token against the
// client named in the path. Failures answer 401 with an empty body.
func (h *ClientHandler) authenticate(c *gin.Context) (*models.Client, bool) {
	bearer, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !found || bearer == "" {
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}

	client, err := h.clients.Authenticate(c.Request.Context(), c.Param("clientId"), bearer)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}
	return client, true
}
