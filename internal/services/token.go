package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/google/uuid"
)

// Grant types supported by the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	grantImplicit          = "implicit"
)

// TokenResponse is the token endpoint's success body. ExpiresIn is nil for
// never-expiring tokens and the field is omitted entirely.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// IntrospectionResponse mirrors the introspection wire shape. Active is a
// string: failed introspections answer exactly {"active": "false"}.
type IntrospectionResponse map[string]any

// InactiveToken is the introspection answer for any unusable token.
func InactiveToken() IntrospectionResponse {
	return IntrospectionResponse{"active": "false"}
}

// TokenService implements the token lifecycle: grant exchanges,
// introspection and revocation.
type TokenService struct {
	store    *store.Store
	clients  *ClientDirectory
	signer   *token.Signer
	verifier *token.Verifier
	cfg      *config.Config
	metrics  metrics.Recorder
}

func NewTokenService(
	s *store.Store,
	clients *ClientDirectory,
	signer *token.Signer,
	verifier *token.Verifier,
	cfg *config.Config,
	m metrics.Recorder,
) *TokenService {
	return &TokenService{
		store:    s,
		clients:  clients,
		signer:   signer,
		verifier: verifier,
		cfg:      cfg,
		metrics:  m,
	}
}

// ExchangeAuthCode implements the authorization_code grant. The code is
// removed from storage at lookup, before any validation: a second
// presentation finds nothing even when the first one failed.
func (s *TokenService) ExchangeAuthCode(
	ctx context.Context,
	client *models.Client,
	code string,
) (*TokenResponse, error) {
	taken, err := s.store.TakeAuthCode(code)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrInvalidGrant
		}
		s.metrics.RecordDatabaseQueryError("take_auth_code")
		return nil, err
	}

	now := time.Now()
	if taken.ClientID != client.ClientID || !taken.Valid(now) {
		return nil, ErrInvalidGrant
	}

	start := time.Now()
	resp, err := s.mintPair(client, taken.UserID, taken.Scope, taken.Nonce, GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued(models.CategoryAccess, GrantAuthorizationCode, time.Since(start))
	return resp, nil
}

// RefreshAccessToken implements the refresh_token grant. The refresh token
// is not rotated: the response carries the same value back. A refresh token
// presented by a client that does not own it is treated as stolen and
// deleted on the spot. An expired refresh token is merely invalid; it stays
// until the sweep collects it.
func (s *TokenService) RefreshAccessToken(
	ctx context.Context,
	client *models.Client,
	refreshValue, requestedScope string,
) (*TokenResponse, error) {
	tok, err := s.store.GetTokenByValue(refreshValue)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordTokenRefresh(false)
			return nil, ErrInvalidGrant
		}
		s.metrics.RecordDatabaseQueryError("get_token")
		return nil, err
	}
	if !tok.IsRefreshToken() {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}

	if tok.ClientID != client.ClientID {
		// Possession by the wrong client means the value leaked.
		if err := s.store.DeleteTokenByValue(refreshValue); err != nil {
			s.metrics.RecordDatabaseQueryError("delete_token")
		}
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}

	now := time.Now()
	if !tok.Valid(now) {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidGrant
	}

	scope := strings.TrimSpace(requestedScope)
	if scope == "" {
		scope = tok.Scope
	} else if !models.ScopeSubset(tok.Scope, scope) {
		s.metrics.RecordTokenRefresh(false)
		return nil, ErrInvalidScope
	}

	start := time.Now()
	access, signed, err := s.mintAccessToken(client.ClientID, tok.UserID, scope)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(access.ExpiresAt),
		RefreshToken: tok.Value,
		Scope:        scope,
	}
	s.attachIDToken(resp, client.ClientID, tok.UserID, "", scope)

	s.metrics.RecordTokenRefresh(true)
	s.metrics.RecordTokenIssued(models.CategoryAccess, GrantRefreshToken, time.Since(start))
	return resp, nil
}

// ClientCredentials implements the client_credentials grant: a token for
// the client itself, with no resource owner and no refresh token.
func (s *TokenService) ClientCredentials(
	ctx context.Context,
	client *models.Client,
	requestedScope string,
) (*TokenResponse, error) {
	scope := strings.TrimSpace(requestedScope)
	if scope == "" {
		scope = client.Scope
	} else if !models.ScopeSubset(client.Scope, scope) {
		return nil, ErrInvalidScope
	}

	start := time.Now()
	access, signed, err := s.mintAccessToken(client.ClientID, "", scope)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued(models.CategoryAccess, GrantClientCredentials, time.Since(start))

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(access.ExpiresAt),
		Scope:       scope,
	}, nil
}

// MintImplicitToken mints an access token for the implicit flow. No refresh
// token is issued; the fragment redirect is the only delivery.
func (s *TokenService) MintImplicitToken(
	ctx context.Context,
	clientID, userID, scope string,
) (*TokenResponse, error) {
	start := time.Now()
	access, signed, err := s.mintAccessToken(clientID, userID, scope)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTokenIssued(models.CategoryAccess, grantImplicit, time.Since(start))

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn(access.ExpiresAt),
		Scope:       scope,
	}, nil
}

// Introspect resolves a token for an authenticated resource server. The
// value is tried as a JWT first; if the signature verifies, the embedded
// jti locates the stored record. Otherwise the value is looked up as an
// opaque token. Every failure mode answers the same inactive shape.
func (s *TokenService) Introspect(ctx context.Context, value string) IntrospectionResponse {
	start := time.Now()

	tok := s.resolveToken(value)
	if tok == nil || !tok.Valid(time.Now()) {
		s.metrics.RecordIntrospection("inactive", time.Since(start))
		return InactiveToken()
	}

	resp := IntrospectionResponse{
		"active":     "true",
		"iss":        s.cfg.BaseURL,
		"client_id":  tok.ClientID,
		"token_type": tok.Category,
	}
	if tok.UserID != "" {
		resp["sub"] = tok.UserID
		// username stays out of the answer when the user is gone.
		if user, err := s.store.GetUserByUserID(tok.UserID); err == nil {
			resp["username"] = user.Username
		}
	}
	if tok.Scope != "" {
		resp["scope"] = tok.Scope
	}
	if tok.ExpiresAt != nil {
		resp["exp"] = tok.ExpiresAt.Unix()
	}
	resp["iat"] = tok.IssuedAt.Unix()
	resp["nbf"] = tok.NotBefore.Unix()

	s.metrics.RecordIntrospection("active", time.Since(start))
	return resp
}

// Revoke deletes the token when the authenticated client owns it. Unknown
// values and foreign tokens are silent no-ops: revocation leaks nothing
// about other clients' tokens.
func (s *TokenService) Revoke(ctx context.Context, client *models.Client, value string) error {
	tok := s.resolveToken(value)
	if tok == nil || tok.ClientID != client.ClientID {
		return nil
	}

	if err := s.store.DeleteTokenByValue(tok.Value); err != nil {
		s.metrics.RecordDatabaseQueryError("delete_token")
		return err
	}
	s.metrics.RecordTokenRevoked(tok.Category)
	return nil
}

// resolveToken maps a presented value to a stored token record, trying JWT
// resolution before the opaque lookup. Returns nil when nothing matches.
func (s *TokenService) resolveToken(value string) *models.Token {
	if result := s.verifier.VerifyAccessToken(value); result.Valid && result.TokenID != "" {
		if tok, err := s.store.GetTokenByValue(result.TokenID); err == nil {
			return tok
		}
		return nil
	}

	tok, err := s.store.GetTokenByValue(value)
	if err != nil {
		return nil
	}
	return tok
}

// mintPair mints the access+refresh pair for a user-delegated grant. Both
// tokens share client, user and scope.
func (s *TokenService) mintPair(
	client *models.Client,
	userID, scope, nonce, grant string,
) (*TokenResponse, error) {
	access, signed, err := s.mintAccessToken(client.ClientID, userID, scope)
	if err != nil {
		return nil, err
	}

	refresh, err := s.mintRefreshToken(client.ClientID, userID, scope)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken:  signed,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn(access.ExpiresAt),
		RefreshToken: refresh.Value,
		Scope:        scope,
	}
	s.attachIDToken(resp, client.ClientID, userID, nonce, scope)
	return resp, nil
}

// mintAccessToken stores an access token record and signs its JWT form.
func (s *TokenService) mintAccessToken(
	clientID, userID, scope string,
) (*models.Token, string, error) {
	now := time.Now()
	issuedAt, notBefore, expiresAt := s.cfg.AccessTokenLifespan.Window(now)

	tok := &models.Token{
		Value:     uuid.New().String(),
		Category:  models.CategoryAccess,
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  issuedAt,
		NotBefore: notBefore,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateToken(tok); err != nil {
		s.metrics.RecordDatabaseQueryError("create_token")
		return nil, "", err
	}

	signed, err := s.signer.SignAccessToken(tok, s.cfg.BaseURL)
	if err != nil {
		return nil, "", err
	}
	return tok, signed, nil
}

func (s *TokenService) mintRefreshToken(
	clientID, userID, scope string,
) (*models.Token, error) {
	now := time.Now()
	issuedAt, notBefore, expiresAt := s.cfg.RefreshTokenLifespan.Window(now)

	tok := &models.Token{
		Value:     uuid.New().String(),
		Category:  models.CategoryRefresh,
		ClientID:  clientID,
		UserID:    userID,
		Scope:     scope,
		IssuedAt:  issuedAt,
		NotBefore: notBefore,
		ExpiresAt: expiresAt,
	}
	if err := s.store.CreateToken(tok); err != nil {
		s.metrics.RecordDatabaseQueryError("create_token")
		return nil, err
	}
	return tok, nil
}

// attachIDToken adds an OpenID Connect ID token when the grant includes the
// openid scope and the user still exists. A deleted user silently drops the
// id_token rather than failing the exchange.
func (s *TokenService) attachIDToken(
	resp *TokenResponse,
	clientID, userID, nonce, scope string,
) {
	if userID == "" || !token.ScopeContains(scope, "openid") {
		return
	}

	user, err := s.store.GetUserByUserID(userID)
	if err != nil {
		return
	}
	client := &models.Client{ClientID: clientID}

	idToken, err := s.signer.SignIDToken(user, client, nonce, scope, s.cfg.BaseURL)
	if err != nil {
		return
	}
	resp.IDToken = idToken
}

// expiresIn converts an absolute expiry into the relative wire field.
// Never-expiring tokens return nil and the field is omitted.
func expiresIn(expiresAt *time.Time) *int64 {
	if expiresAt == nil {
		return nil
	}
	seconds := int64(time.Until(*expiresAt).Round(time.Second).Seconds())
	return &seconds
}
