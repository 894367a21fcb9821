package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-authgate/oauthd/internal/clientauth"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/services"

	"github.com/gin-gonic/gin"
)

// TokenHandler serves the token endpoint and the revocation endpoint. Both
// authenticate the calling client from the request itself.
type TokenHandler struct {
	tokens  *services.TokenService
	clients *services.ClientDirectory
	metrics metrics.Recorder
}

func NewTokenHandler(
	tokens *services.TokenService,
	clients *services.ClientDirectory,
	m metrics.Recorder,
) *TokenHandler {
	return &TokenHandler{tokens: tokens, clients: clients, metrics: m}
}

// Token dispatches on grant_type after authenticating the client.
func (h *TokenHandler) Token(c *gin.Context) {
	client, ok := h.authenticateClient(c)
	if !ok {
		return
	}

	// Grants this endpoint does not implement are unsupported for every
	// client, even when a client registered the grant name.
	grantType := c.PostForm("grant_type")
	if !supportedGrantType(grantType) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "unsupported_grant_type",
			"error_description": "Supported grant types: authorization_code, refresh_token, client_credentials",
		})
		return
	}
	if !client.AllowsGrantType(grantType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unauthorized_client"})
		return
	}

	switch grantType {
	case services.GrantAuthorizationCode:
		h.handleAuthorizationCodeGrant(c, client)
	case services.GrantRefreshToken:
		h.handleRefreshTokenGrant(c, client)
	case services.GrantClientCredentials:
		h.handleClientCredentialsGrant(c, client)
	}
}

func supportedGrantType(grantType string) bool {
	switch grantType {
	case services.GrantAuthorizationCode,
		services.GrantRefreshToken,
		services.GrantClientCredentials:
		return true
	}
	return false
}

func (h *TokenHandler) handleAuthorizationCodeGrant(c *gin.Context, client *models.Client) {
	code := c.PostForm("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code is required",
		})
		return
	}

	resp, err := h.tokens.ExchangeAuthCode(c.Request.Context(), client, code)
	if err != nil {
		h.grantError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TokenHandler) handleRefreshTokenGrant(c *gin.Context, client *models.Client) {
	refreshToken := c.PostForm("refresh_token")
	if refreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "refresh_token is required",
		})
		return
	}

	resp, err := h.tokens.RefreshAccessToken(
		c.Request.Context(),
		client,
		refreshToken,
		c.PostForm("scope"),
	)
	if err != nil {
		h.grantError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *TokenHandler) handleClientCredentialsGrant(c *gin.Context, client *models.Client) {
	resp, err := h.tokens.ClientCredentials(c.Request.Context(), client, c.PostForm("scope"))
	if err != nil {
		h.grantError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Revoke deletes a token the calling client owns. Per the revocation
// contract the endpoint answers 200 whether or not anything was revoked.
func (h *TokenHandler) Revoke(c *gin.Context) {
	client, ok := h.authenticateClient(c)
	if !ok {
		return
	}

	value := c.PostForm("token")
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "token is required",
		})
		return
	}

	if err := h.tokens.Revoke(c.Request.Context(), client, value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// authenticateClient extracts credentials and resolves the client. Public
// clients authenticate by id alone; confidential clients must present
// their secret. Credentials on both channels at once fail outright. A
// failure writes the 401 and returns ok=false.
func (h *TokenHandler) authenticateClient(c *gin.Context) (*models.Client, bool) {
	creds, err := clientauth.Extract(c.Request)
	if err != nil {
		h.metrics.RecordClientAuthAttempt("unknown", false)
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}

	method := "params"
	if creds.Basic {
		method = "basic"
	}

	client, err := h.resolveClient(c.Request.Context(), creds.ID)
	if err != nil {
		h.metrics.RecordClientAuthAttempt(method, false)
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}

	if client.IsPublic() {
		if creds.Secret != "" {
			h.metrics.RecordClientAuthAttempt(method, false)
			c.Status(http.StatusUnauthorized)
			c.Abort()
			return nil, false
		}
	} else if err := clientauth.Verify(creds, client); err != nil {
		h.metrics.RecordClientAuthAttempt(method, false)
		c.Status(http.StatusUnauthorized)
		c.Abort()
		return nil, false
	}

	h.metrics.RecordClientAuthAttempt(method, true)
	return client, true
}

func (h *TokenHandler) resolveClient(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, services.ErrClientNotFound
	}
	return h.clients.Get(ctx, clientID)
}

// grantError maps service errors onto the protocol error vocabulary.
func (h *TokenHandler) grantError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidGrant):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
	case errors.Is(err, services.ErrInvalidScope):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_scope"})
	case errors.Is(err, services.ErrUnsupportedGrantType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
	}
}
