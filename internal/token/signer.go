package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer mints RS256 JWTs under the key that belongs to the token's
// audience. The header carries typ, alg and kid; claims carry
// iss/sub/aud/iat/nbf and, for expiring tokens, exp.
type Signer struct {
	keyring *Keyring
	cfg     *config.Config
}

func NewSigner(keyring *Keyring, cfg *config.Config) *Signer {
	return &Signer{keyring: keyring, cfg: cfg}
}

// SignAccessToken mints the JWT form of a stored access token. The token's
// jti equals the stored Value so introspection can resolve the record.
// Client-credentials tokens have no user; sub falls back to the client id.
func (s *Signer) SignAccessToken(tok *models.Token, issuer string) (string, error) {
	sub := tok.UserID
	if sub == "" {
		sub = tok.ClientID
	}

	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   sub,
		"aud":   tok.ClientID,
		"iat":   tok.IssuedAt.Unix(),
		"nbf":   tok.NotBefore.Unix(),
		"jti":   tok.Value,
		"scope": tok.Scope,
	}
	if tok.ExpiresAt != nil {
		claims["exp"] = tok.ExpiresAt.Unix()
	}

	return s.sign(KeyIDForClient(tok.ClientID), claims)
}

// SignIDToken mints an OpenID Connect ID token for the given user and client.
// Identity claims are released individually: full name under profile,
// email under email, address under address.
func (s *Signer) SignIDToken(
	user *models.User,
	client *models.Client,
	nonce, scope, issuer string,
) (string, error) {
	now := time.Now()
	issuedAt, notBefore, expiresAt := s.cfg.IDTokenLifespan.Window(now)

	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": user.UserID,
		"aud": client.ClientID,
		"iat": issuedAt.Unix(),
		"nbf": notBefore.Unix(),
		"jti": uuid.New().String(),
	}
	if expiresAt != nil {
		claims["exp"] = expiresAt.Unix()
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	granted := models.ScopeSet(scope)
	if granted["profile"] && user.FullName != "" {
		claims["name"] = user.FullName
	}
	if granted["email"] && user.Email != "" {
		claims["email"] = user.Email
	}
	if granted["address"] && user.Address != "" {
		claims["address"] = user.Address
	}

	return s.sign(KeyIDForIDToken(), claims)
}

// SignDelegationToken mints a token a resource server can hand to its own
// trusted collaborators. The audience is the server itself and the token
// carries no scope claims.
func (s *Signer) SignDelegationToken(serverID, userID, issuer string) (string, error) {
	now := time.Now()
	issuedAt, notBefore, expiresAt := s.cfg.DelegationTokenLifespan.Window(now)

	claims := jwt.MapClaims{
		"iss": issuer,
		"sub": userID,
		"aud": serverID,
		"iat": issuedAt.Unix(),
		"nbf": notBefore.Unix(),
		"jti": uuid.New().String(),
	}
	if expiresAt != nil {
		claims["exp"] = expiresAt.Unix()
	}

	return s.sign(KeyIDForResourceServer(serverID), claims)
}

func (s *Signer) sign(kid string, claims jwt.MapClaims) (string, error) {
	key, err := s.keyring.GetOrCreate(kid)
	if err != nil {
		return "", fmt.Errorf("sign with %s: %w", kid, err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	return tok.SignedString(key)
}

// ScopeContains reports whether the space-separated scope string contains
// the named scope.
func ScopeContains(scope, name string) bool {
	for _, s := range strings.Fields(scope) {
		if s == name {
			return true
		}
	}
	return false
}
