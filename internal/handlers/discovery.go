package handlers

import (
	"errors"
	"net/http"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/gin-gonic/gin"
	jose "github.com/go-jose/go-jose/v4"
)

// DiscoveryHandler serves the well-known metadata and key material.
type DiscoveryHandler struct {
	keyring *token.Keyring
	cfg     *config.Config
}

func NewDiscoveryHandler(keyring *token.Keyring, cfg *config.Config) *DiscoveryHandler {
	return &DiscoveryHandler{keyring: keyring, cfg: cfg}
}

// Metadata serves the authorization server metadata document.
func (h *DiscoveryHandler) Metadata(c *gin.Context) {
	base := h.cfg.BaseURL
	c.JSON(http.StatusOK, gin.H{
		"issuer":                   base,
		"authorization_endpoint":   base + "/authorize",
		"token_endpoint":           base + "/token",
		"introspection_endpoint":   base + "/token/introspect",
		"revocation_endpoint":      base + "/token/revoke",
		"registration_endpoint":    base + "/clients",
		"jwks_uri":                 base + "/.well-known/jwks",
		"response_types_supported": []string{"code", "token"},
		"grant_types_supported": []string{
			"authorization_code", "implicit", "refresh_token", "client_credentials",
		},
		"token_endpoint_auth_methods_supported": []string{
			"client_secret_basic", "client_secret_post", "none",
		},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      []string{"openid", "profile", "email", "address"},
	})
}

// JWKS serves every persisted public key.
func (h *DiscoveryHandler) JWKS(c *gin.Context) {
	set, err := h.keyring.PublicKeys()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, set)
}

// JWKSByKID serves the public key for one key id, 404 for unknown ids.
func (h *DiscoveryHandler) JWKSByKID(c *gin.Context) {
	kid := c.Param("kid")

	key, err := h.keyring.PublicKey(kid)
	if err != nil {
		if errors.Is(err, token.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown key id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.JSON(http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{*key}})
}
