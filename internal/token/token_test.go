package token

import (
	"testing"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "http://localhost:8080"

func decodeClaims(t *testing.T, tokenString string) jwt.MapClaims {
	t.Helper()
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	require.NoError(t, err)
	return claims
}

func setupKeyring(t *testing.T) (*Keyring, *store.Store) {
	t.Helper()
	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)
	return NewKeyring(s), s
}

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenLifespan:     config.Lifespan{TTL: time.Hour},
		IDTokenLifespan:         config.Lifespan{TTL: time.Hour},
		DelegationTokenLifespan: config.Lifespan{TTL: time.Hour},
	}
}

func TestKeyringGetOrCreateIsStable(t *testing.T) {
	keyring, _ := setupKeyring(t)

	first, err := keyring.GetOrCreate("token_client-1")
	require.NoError(t, err)

	second, err := keyring.GetOrCreate("token_client-1")
	require.NoError(t, err)
	assert.Equal(t, first.D, second.D)
}

func TestKeyringSurvivesRestart(t *testing.T) {
	s, err := store.New("sqlite", "file:keyring_restart?mode=memory&cache=shared")
	require.NoError(t, err)

	first, err := NewKeyring(s).GetOrCreate("token_client-1")
	require.NoError(t, err)

	// A fresh keyring over the same store loads the persisted key.
	second, err := NewKeyring(s).GetOrCreate("token_client-1")
	require.NoError(t, err)
	assert.Equal(t, first.D, second.D)
}

func TestKeyringGetNeverCreates(t *testing.T) {
	keyring, _ := setupKeyring(t)

	_, err := keyring.Get("token_unknown")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())
	verifier := NewVerifier(keyring, testIssuer)

	now := time.Now()
	exp := now.Add(time.Hour)
	tok := &models.Token{
		Value:     "jti-1",
		Category:  models.CategoryAccess,
		ClientID:  "client-1",
		UserID:    "user-1",
		Scope:     "read write",
		IssuedAt:  now.Add(-time.Second),
		NotBefore: now.Add(-time.Second),
		ExpiresAt: &exp,
	}

	signed, err := signer.SignAccessToken(tok, testIssuer)
	require.NoError(t, err)

	result := verifier.VerifyAccessToken(signed)
	require.True(t, result.Valid)
	assert.Equal(t, "jti-1", result.TokenID)
	assert.Equal(t, "user-1", result.Subject)
	assert.Equal(t, "client-1", result.Audience)
	assert.Equal(t, "read write", result.Scope)
	require.NotNil(t, result.ExpiresAt)
	assert.WithinDuration(t, exp, *result.ExpiresAt, time.Second)
}

func TestAccessTokenPerClientKeys(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())

	now := time.Now()
	exp := now.Add(time.Hour)
	mint := func(clientID string) string {
		signed, err := signer.SignAccessToken(&models.Token{
			Value:     "jti-" + clientID,
			Category:  models.CategoryAccess,
			ClientID:  clientID,
			UserID:    "user-1",
			IssuedAt:  now.Add(-time.Second),
			NotBefore: now.Add(-time.Second),
			ExpiresAt: &exp,
		}, testIssuer)
		require.NoError(t, err)
		return signed
	}

	a := mint("client-a")
	b := mint("client-b")

	keyA, err := keyring.Get(KeyIDForClient("client-a"))
	require.NoError(t, err)
	keyB, err := keyring.Get(KeyIDForClient("client-b"))
	require.NoError(t, err)
	assert.NotEqual(t, keyA.D, keyB.D)

	verifier := NewVerifier(keyring, testIssuer)
	assert.True(t, verifier.VerifyAccessToken(a).Valid)
	assert.True(t, verifier.VerifyAccessToken(b).Valid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())
	verifier := NewVerifier(keyring, testIssuer)

	now := time.Now()
	exp := now.Add(-time.Minute)
	signed, err := signer.SignAccessToken(&models.Token{
		Value:     "jti-expired",
		Category:  models.CategoryAccess,
		ClientID:  "client-1",
		IssuedAt:  now.Add(-time.Hour),
		NotBefore: now.Add(-time.Hour),
		ExpiresAt: &exp,
	}, testIssuer)
	require.NoError(t, err)

	assert.False(t, verifier.VerifyAccessToken(signed).Valid)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())

	now := time.Now()
	exp := now.Add(time.Hour)
	signed, err := signer.SignAccessToken(&models.Token{
		Value:     "jti-1",
		Category:  models.CategoryAccess,
		ClientID:  "client-1",
		IssuedAt:  now.Add(-time.Second),
		NotBefore: now.Add(-time.Second),
		ExpiresAt: &exp,
	}, "https://other-issuer.example")
	require.NoError(t, err)

	verifier := NewVerifier(keyring, testIssuer)
	assert.False(t, verifier.VerifyAccessToken(signed).Valid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	keyring, _ := setupKeyring(t)
	verifier := NewVerifier(keyring, testIssuer)

	assert.False(t, verifier.VerifyAccessToken("").Valid)
	assert.False(t, verifier.VerifyAccessToken("not-a-jwt").Valid)
	assert.False(t, verifier.VerifyAccessToken("a.b.c").Valid)
}

func TestIDTokenClaimsGatedByScope(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())

	user := &models.User{
		UserID:   "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Example",
		Address:  "1 Main St",
	}
	client := &models.Client{ClientID: "client-1"}

	signed, err := signer.SignIDToken(user, client, "nonce-1", "openid email", testIssuer)
	require.NoError(t, err)

	claims := decodeClaims(t, signed)
	assert.Equal(t, "alice@example.com", claims["email"])
	assert.Equal(t, "nonce-1", claims["nonce"])
	// profile and address were not granted.
	assert.NotContains(t, claims, "name")
	assert.NotContains(t, claims, "address")
}

func TestDelegationTokenAudienceBinding(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())
	verifier := NewVerifier(keyring, testIssuer)

	signed, err := signer.SignDelegationToken("rs-1", "user-1", testIssuer)
	require.NoError(t, err)

	result := verifier.VerifyDelegationToken(signed, "rs-1")
	require.True(t, result.Valid)
	assert.Equal(t, "user-1", result.Subject)

	// Another server cannot validate a token minted for rs-1, even though
	// the signature is genuine.
	_, err = signer.SignDelegationToken("rs-2", "user-1", testIssuer)
	require.NoError(t, err)
	assert.False(t, verifier.VerifyDelegationToken(signed, "rs-2").Valid)
}

func TestPublicKeysListsAllNamespaces(t *testing.T) {
	keyring, _ := setupKeyring(t)
	signer := NewSigner(keyring, testConfig())

	now := time.Now()
	exp := now.Add(time.Hour)
	_, err := signer.SignAccessToken(&models.Token{
		Value:     "jti-1",
		Category:  models.CategoryAccess,
		ClientID:  "client-1",
		IssuedAt:  now.Add(-time.Second),
		NotBefore: now.Add(-time.Second),
		ExpiresAt: &exp,
	}, testIssuer)
	require.NoError(t, err)
	_, err = signer.SignDelegationToken("rs-1", "user-1", testIssuer)
	require.NoError(t, err)

	set, err := keyring.PublicKeys()
	require.NoError(t, err)

	kids := make([]string, 0, len(set.Keys))
	for _, k := range set.Keys {
		kids = append(kids, k.KeyID)
	}
	assert.Contains(t, kids, KeyIDForClient("client-1"))
	assert.Contains(t, kids, KeyIDForResourceServer("rs-1"))
}
