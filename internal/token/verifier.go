package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerificationResult is the outcome of a JWT verification. Any failure at
// any stage collapses to Valid=false; no parse or signature error crosses
// this boundary.
type VerificationResult struct {
	Valid     bool
	TokenID   string // jti, equals the stored token value
	Subject   string
	Audience  string
	Scope     string
	ExpiresAt *time.Time
}

// Verifier checks RS256 JWTs in two passes. The first pass reads the header
// and claims without trusting them, only to learn which audience the token
// claims and therefore which key must verify it. The second pass verifies
// the signature under that key and the result is accepted only when the
// verified header's kid matches the key id the audience implies.
type Verifier struct {
	keyring *Keyring
	issuer  string
}

func NewVerifier(keyring *Keyring, issuer string) *Verifier {
	return &Verifier{keyring: keyring, issuer: issuer}
}

// VerifyAccessToken verifies a JWT access token. The expected key is the one
// namespaced to the client named in the unverified aud claim.
func (v *Verifier) VerifyAccessToken(tokenString string) *VerificationResult {
	aud, ok := v.unverifiedAudience(tokenString)
	if !ok {
		return &VerificationResult{}
	}
	return v.verify(tokenString, KeyIDForClient(aud), aud)
}

// VerifyDelegationToken verifies a delegated user token presented by the
// resource server it was minted for. The audience must equal the verifying
// server's own id; a token minted for another server fails even though its
// signature is genuine.
func (v *Verifier) VerifyDelegationToken(tokenString, serverID string) *VerificationResult {
	return v.verify(tokenString, KeyIDForResourceServer(serverID), serverID)
}

// unverifiedAudience extracts the aud claim without signature verification.
// The value is untrusted; it only selects which key the real verification
// must use.
func (v *Verifier) unverifiedAudience(tokenString string) (string, bool) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	tok, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", false
	}
	aud, err := tok.Claims.GetAudience()
	if err != nil || len(aud) != 1 || aud[0] == "" {
		return "", false
	}
	return aud[0], true
}

func (v *Verifier) verify(tokenString, expectedKID, expectedAud string) *VerificationResult {
	key, err := v.keyring.Get(expectedKID)
	if err != nil {
		return &VerificationResult{}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(expectedAud),
	)

	claims := jwt.MapClaims{}
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	})
	if err != nil || !tok.Valid {
		return &VerificationResult{}
	}

	// The verified header must name the key we expected. A token signed
	// under some other key id is rejected even if the signature checks out.
	kid, _ := tok.Header["kid"].(string)
	if kid != expectedKID {
		return &VerificationResult{}
	}

	result := &VerificationResult{Valid: true, Audience: expectedAud}
	if sub, err := claims.GetSubject(); err == nil {
		result.Subject = sub
	}
	if jti, ok := claims["jti"].(string); ok {
		result.TokenID = jti
	}
	if scope, ok := claims["scope"].(string); ok {
		result.Scope = scope
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.ExpiresAt = &exp.Time
	}
	return result
}
