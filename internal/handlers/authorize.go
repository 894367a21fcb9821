package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-authgate/oauthd/internal/middleware"
	"github.com/go-authgate/oauthd/internal/services"

	"github.com/gin-gonic/gin"
)

// AuthorizeHandler serves the front-channel authorization endpoint.
type AuthorizeHandler struct {
	auth *services.AuthorizationService
}

func NewAuthorizeHandler(auth *services.AuthorizationService) *AuthorizeHandler {
	return &AuthorizeHandler{auth: auth}
}

// Authorize validates the authorization request and parks it for consent.
// Failures that happen before a trusted redirect URI is established answer
// with a 400 error body; later failures redirect back to the client.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	req := &services.AuthRequest{
		ClientID:     c.Query("client_id"),
		RedirectURI:  c.Query("redirect_uri"),
		ResponseType: c.Query("response_type"),
		Scope:        c.Query("scope"),
		State:        c.Query("state"),
		Nonce:        c.Query("nonce"),
	}

	payload, err := h.auth.Begin(c.Request.Context(), req)
	if err != nil {
		var redirectErr *services.RedirectError
		switch {
		case errors.As(err, &redirectErr):
			c.Redirect(http.StatusFound, redirectURLFor(redirectErr))
		case errors.Is(err, services.ErrClientNotFound):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "Unknown client",
			})
		case errors.Is(err, services.ErrInvalidRedirectURI):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "redirect_uri does not match the client registration",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		}
		return
	}

	c.JSON(http.StatusOK, payload)
}

// Consent applies the resource owner's decision to a pending request.
// The form carries reqId, approve, and one scope_<name>=on field per
// granted scope the owner left ticked.
func (h *AuthorizeHandler) Consent(c *gin.Context) {
	requestID := c.PostForm("reqId")
	if requestID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "reqId is required",
		})
		return
	}

	approve := c.PostForm("approve") == "true" || c.PostForm("approve") == "on"
	userID := middleware.SessionUser(c)

	redirect, err := h.auth.Finish(
		c.Request.Context(),
		requestID,
		approve,
		selectedScopes(c),
		userID,
	)
	if err != nil {
		if errors.Is(err, services.ErrUnknownRequest) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":             "invalid_request",
				"error_description": "Unknown or already decided authorization request",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

// selectedScopes collects the scope_<name>=on checkboxes from the consent
// form.
func selectedScopes(c *gin.Context) []string {
	_ = c.Request.ParseForm()

	var scopes []string
	for key, values := range c.Request.PostForm {
		name, found := strings.CutPrefix(key, "scope_")
		if !found || name == "" {
			continue
		}
		for _, v := range values {
			if v == "on" || v == "true" {
				scopes = append(scopes, name)
				break
			}
		}
	}
	return scopes
}

func redirectURLFor(err *services.RedirectError) string {
	params := url.Values{"error": {err.Code}}
	if err.State != "" {
		params.Set("state", err.State)
	}
	if err.Fragment {
		return err.RedirectURI + "#" + params.Encode()
	}
	sep := "?"
	if strings.Contains(err.RedirectURI, "?") {
		sep = "&"
	}
	return err.RedirectURI + sep + params.Encode()
}
