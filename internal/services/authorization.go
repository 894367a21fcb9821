package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/pending"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/google/uuid"
)

// Response types supported by the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthRequest carries the query parameters of an authorization request.
type AuthRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scope        string
	State        string
	Nonce        string
}

// ConsentPayload is what the consent UI needs to render the decision page.
type ConsentPayload struct {
	RequestID  string   `json:"request_id"`
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name,omitempty"`
	Scopes     []string `json:"scopes"`
	State      string   `json:"state,omitempty"`
}

// AuthorizationService validates authorization requests, parks them for
// consent and turns the resource owner's decision into a code or token
// redirect.
type AuthorizationService struct {
	store   *store.Store
	pending pending.Store
	clients *ClientDirectory
	tokens  *TokenService
	cfg     *config.Config
	metrics metrics.Recorder
}

func NewAuthorizationService(
	s *store.Store,
	p pending.Store,
	clients *ClientDirectory,
	tokens *TokenService,
	cfg *config.Config,
	m metrics.Recorder,
) *AuthorizationService {
	return &AuthorizationService{
		store:   s,
		pending: p,
		clients: clients,
		tokens:  tokens,
		cfg:     cfg,
		metrics: m,
	}
}

// ValidateRequest checks an authorization request in fail-stop order. The
// first two checks are fatal because without a known client and a trusted
// redirect URI nothing may be redirected; later failures are delivered to
// the client through the validated URI.
func (s *AuthorizationService) ValidateRequest(
	ctx context.Context,
	req *AuthRequest,
) (*pending.Request, error) {
	client, err := s.clients.Get(ctx, req.ClientID)
	if err != nil {
		s.metrics.RecordAuthorizeRequest("invalid_client")
		return nil, err
	}

	redirectURI, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		s.metrics.RecordAuthorizeRequest("invalid_redirect")
		return nil, err
	}

	fragment := req.ResponseType == ResponseTypeToken
	if !client.AllowsResponseType(req.ResponseType) {
		s.metrics.RecordAuthorizeRequest("unsupported_response_type")
		return nil, &RedirectError{
			Code:        "unsupported_response_type",
			RedirectURI: redirectURI,
			State:       req.State,
			Fragment:    fragment,
		}
	}

	// Absent scope defaults to everything the client registered.
	scope := strings.TrimSpace(req.Scope)
	if scope == "" {
		scope = client.Scope
	} else if !models.ScopeSubset(client.Scope, scope) {
		s.metrics.RecordAuthorizeRequest("invalid_scope")
		return nil, &RedirectError{
			Code:        "invalid_scope",
			RedirectURI: redirectURI,
			State:       req.State,
			Fragment:    fragment,
		}
	}

	s.metrics.RecordAuthorizeRequest("valid")
	return &pending.Request{
		ClientID:     client.ClientID,
		ClientName:   client.ClientName,
		RedirectURI:  redirectURI,
		ResponseType: req.ResponseType,
		Scope:        scope,
		State:        req.State,
		Nonce:        req.Nonce,
	}, nil
}

// Begin validates the request and parks it for consent, returning the
// payload the consent page renders.
func (s *AuthorizationService) Begin(
	ctx context.Context,
	req *AuthRequest,
) (*ConsentPayload, error) {
	validated, err := s.ValidateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	id, err := s.pending.InsertUnique(validated)
	if err != nil {
		return nil, err
	}

	return &ConsentPayload{
		RequestID:  id,
		ClientID:   validated.ClientID,
		ClientName: validated.ClientName,
		Scopes:     strings.Fields(validated.Scope),
		State:      validated.State,
	}, nil
}

// Finish consumes the pending request and produces the redirect the user
// agent must follow. approvedScopes lists the scopes the resource owner
// ticked; it must be a subset of what validation granted.
func (s *AuthorizationService) Finish(
	ctx context.Context,
	requestID string,
	approve bool,
	approvedScopes []string,
	userID string,
) (string, error) {
	req, err := s.pending.TakeOnce(requestID)
	if err != nil {
		return "", ErrUnknownRequest
	}

	fragment := req.ResponseType == ResponseTypeToken
	s.metrics.RecordConsentDecision(approve)

	if !approve {
		return errorRedirect(req.RedirectURI, "access_denied", req.State, fragment), nil
	}

	scope := strings.Join(approvedScopes, " ")
	if !models.ScopeSubset(req.Scope, scope) {
		return errorRedirect(req.RedirectURI, "invalid_scope", req.State, fragment), nil
	}

	switch req.ResponseType {
	case ResponseTypeCode:
		code, err := s.mintCode(req, scope, userID)
		if err != nil {
			s.metrics.RecordCodeIssued(false)
			return "", err
		}
		s.metrics.RecordCodeIssued(true)

		q := url.Values{"code": {code}}
		if req.State != "" {
			q.Set("state", req.State)
		}
		return appendParams(req.RedirectURI, q, false), nil

	case ResponseTypeToken:
		resp, err := s.tokens.MintImplicitToken(ctx, req.ClientID, userID, scope)
		if err != nil {
			return "", err
		}

		q := url.Values{
			"access_token": {resp.AccessToken},
			"token_type":   {resp.TokenType},
		}
		if resp.ExpiresIn != nil {
			q.Set("expires_in", strconv.FormatInt(*resp.ExpiresIn, 10))
		}
		if resp.Scope != "" {
			q.Set("scope", resp.Scope)
		}
		if req.State != "" {
			q.Set("state", req.State)
		}
		return appendParams(req.RedirectURI, q, true), nil

	default:
		// Response type was validated at Begin; reaching this is a bug.
		return errorRedirect(req.RedirectURI, "unsupported_response_type", req.State, fragment), nil
	}
}

func (s *AuthorizationService) mintCode(
	req *pending.Request,
	scope, userID string,
) (string, error) {
	now := time.Now()
	issuedAt, notBefore, expiresAt := s.cfg.AuthCodeLifespan.Window(now)

	code := &models.AuthCode{
		Code:      uuid.New().String(),
		ClientID:  req.ClientID,
		UserID:    userID,
		Scope:     scope,
		Nonce:     req.Nonce,
		IssuedAt:  issuedAt,
		NotBefore: notBefore,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateAuthCode(code); err != nil {
		s.metrics.RecordDatabaseQueryError("create_auth_code")
		return "", err
	}
	return code.Code, nil
}

// resolveRedirectURI matches the presented URI against the registration.
// An absent URI defaults only when the client registered exactly one.
func resolveRedirectURI(client *models.Client, presented string) (string, error) {
	if presented == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], nil
		}
		return "", ErrInvalidRedirectURI
	}
	if !client.HasRedirectURI(presented) {
		return "", ErrInvalidRedirectURI
	}
	return presented, nil
}

// errorRedirect builds an error delivery URL on the validated redirect URI.
func errorRedirect(redirectURI, code, state string, fragment bool) string {
	q := url.Values{"error": {code}}
	if state != "" {
		q.Set("state", state)
	}
	return appendParams(redirectURI, q, fragment)
}

// appendParams attaches params to uri as query or fragment, preserving any
// query the registered URI already carries.
func appendParams(uri string, params url.Values, fragment bool) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		// The URI came from the client's registration; a parse failure
		// here means the registration itself is broken.
		return uri
	}

	if fragment {
		parsed.Fragment = params.Encode()
		return parsed.String()
	}

	q := parsed.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

