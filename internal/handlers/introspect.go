package handlers

import (
	"net/http"

	"github.com/go-authgate/oauthd/internal/clientauth"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/services"

	"github.com/gin-gonic/gin"
)

// IntrospectHandler serves introspection and delegated-token validation for
// authenticated resource servers.
type IntrospectHandler struct {
	tokens    *services.TokenService
	resources *services.ResourceService
}

func NewIntrospectHandler(
	tokens *services.TokenService,
	resources *services.ResourceService,
) *IntrospectHandler {
	return &IntrospectHandler{tokens: tokens, resources: resources}
}

// Introspect answers a resource server's question about a token. The
// response is 200 with {"active": "false"} for every unusable token; only
// a failed server authentication produces a non-200.
func (h *IntrospectHandler) Introspect(c *gin.Context) {
	if _, ok := h.authenticateServer(c); !ok {
		return
	}

	c.JSON(http.StatusOK, h.tokens.Introspect(c.Request.Context(), c.PostForm("token")))
}

// ValidateUserToken checks a delegated user token presented by the server
// it was minted for.
func (h *IntrospectHandler) ValidateUserToken(c *gin.Context) {
	server, ok := h.authenticateServer(c)
	if !ok {
		return
	}

	result := h.resources.ValidateUserToken(c.Request.Context(), server, c.PostForm("token"))
	c.JSON(http.StatusOK, result)
}

// Deregister removes the calling resource server's own registration.
// Tokens it minted stop validating once the registration is gone.
func (h *IntrospectHandler) Deregister(c *gin.Context) {
	server, ok := h.authenticateServer(c)
	if !ok {
		return
	}

	if err := h.resources.Deregister(c.Request.Context(), server); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// authenticateServer authenticates the calling resource server. Either
// channel works, but not both at once. A failure writes a bare 401.
func (h *IntrospectHandler) authenticateServer(c *gin.Context) (*models.ResourceServer, bool) {
	creds, err := clientauth.ExtractResourceServer(c.Request)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}

	server, err := h.resources.Authenticate(c.Request.Context(), creds.ID, creds.Secret)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}
	return server, true
}
