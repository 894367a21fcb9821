package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchangeAuthCodeHappyPath(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "openid read", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "openid read")

	resp, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "openid read", resp.Scope)
	require.NotNil(t, resp.ExpiresIn)
	assert.InDelta(t, 3600, *resp.ExpiresIn, 5)
	// openid was granted and the user exists, so an ID token rides along.
	assert.NotEmpty(t, resp.IDToken)

	// Both halves of the pair share client, user and scope.
	refresh, err := env.store.GetTokenByValue(resp.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, client.ClientID, refresh.ClientID)
	assert.Equal(t, user.UserID, refresh.UserID)
	assert.Equal(t, "openid read", refresh.Scope)
}

func TestExchangeAuthCodeExactlyOnce(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "read")

	_, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	_, err = env.tokens.ExchangeAuthCode(ctx, client, code)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeAuthCodeWrongClientBurnsCode(t *testing.T) {
	env := setupServices(t)
	owner, _ := seedClient(t, env, "read", "https://app.example/cb")
	thief, _ := seedClient(t, env, "read", "https://thief.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, owner, user, "read")

	// The wrong client's attempt fails, and the lookup itself consumed
	// the code, so the rightful owner cannot use it afterwards either.
	_, err := env.tokens.ExchangeAuthCode(ctx, thief, code)
	assert.ErrorIs(t, err, ErrInvalidGrant)

	_, err = env.tokens.ExchangeAuthCode(ctx, owner, code)
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeAuthCodeUnknownCode(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")

	_, err := env.tokens.ExchangeAuthCode(context.Background(), client, "never-issued")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExchangeSkipsIDTokenWithoutOpenID(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	user := seedUser(t, env)

	code := approveCode(t, env, client, user, "read")
	resp, err := env.tokens.ExchangeAuthCode(context.Background(), client, code)
	require.NoError(t, err)
	assert.Empty(t, resp.IDToken)
}

func TestRefreshAccessTokenNoRotation(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read write", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "read write")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	refreshed, err := env.tokens.RefreshAccessToken(ctx, client, exchanged.RefreshToken, "")
	require.NoError(t, err)

	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, exchanged.AccessToken, refreshed.AccessToken)
	// The same refresh token value comes back; nothing was rotated.
	assert.Equal(t, exchanged.RefreshToken, refreshed.RefreshToken)

	// And it still works again.
	_, err = env.tokens.RefreshAccessToken(ctx, client, exchanged.RefreshToken, "")
	assert.NoError(t, err)
}

func TestRefreshScopeNarrowing(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read write", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "read write")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	narrowed, err := env.tokens.RefreshAccessToken(ctx, client, exchanged.RefreshToken, "read")
	require.NoError(t, err)
	assert.Equal(t, "read", narrowed.Scope)

	_, err = env.tokens.RefreshAccessToken(ctx, client, exchanged.RefreshToken, "read admin")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestRefreshTokenTheftDeletesToken(t *testing.T) {
	env := setupServices(t)
	owner, _ := seedClient(t, env, "read", "https://app.example/cb")
	thief, _ := seedClient(t, env, "read", "https://thief.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, owner, user, "read")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, owner, code)
	require.NoError(t, err)

	_, err = env.tokens.RefreshAccessToken(ctx, thief, exchanged.RefreshToken, "")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// The token was deleted on the spot; the rightful owner lost it too.
	_, err = env.store.GetTokenByValue(exchanged.RefreshToken)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	_, err = env.tokens.RefreshAccessToken(ctx, owner, exchanged.RefreshToken, "")
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestExpiredRefreshTokenInvalidButNotDeleted(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	now := time.Now()
	past := now.Add(-time.Minute)
	expired := &models.Token{
		Value:     uuid.New().String(),
		Category:  models.CategoryRefresh,
		ClientID:  client.ClientID,
		UserID:    user.UserID,
		Scope:     "read",
		IssuedAt:  now.Add(-time.Hour),
		NotBefore: now.Add(-time.Hour),
		ExpiresAt: &past,
	}
	require.NoError(t, env.store.CreateToken(expired))

	_, err := env.tokens.RefreshAccessToken(ctx, client, expired.Value, "")
	assert.ErrorIs(t, err, ErrInvalidGrant)

	// Expiry is not theft: the row stays until the sweep collects it.
	_, err = env.store.GetTokenByValue(expired.Value)
	assert.NoError(t, err)
}

func TestClientCredentialsGrant(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read write", "https://app.example/cb")
	ctx := context.Background()

	resp, err := env.tokens.ClientCredentials(ctx, client, "read")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken)
	assert.Empty(t, resp.IDToken)
	assert.Equal(t, "read", resp.Scope)

	// The stored token has no resource owner.
	introspected := env.tokens.Introspect(ctx, resp.AccessToken)
	assert.Equal(t, "true", introspected["active"])
	assert.NotContains(t, introspected, "sub")
	assert.NotContains(t, introspected, "username")

	_, err = env.tokens.ClientCredentials(ctx, client, "admin")
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestIntrospectActiveToken(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "read")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	// JWT access token resolves through its jti.
	resp := env.tokens.Introspect(ctx, exchanged.AccessToken)
	assert.Equal(t, "true", resp["active"])
	assert.Equal(t, env.cfg.BaseURL, resp["iss"])
	assert.Equal(t, client.ClientID, resp["client_id"])
	assert.Equal(t, user.UserID, resp["sub"])
	assert.Equal(t, user.Username, resp["username"])
	assert.Equal(t, "read", resp["scope"])

	// Opaque refresh token resolves through direct lookup.
	resp = env.tokens.Introspect(ctx, exchanged.RefreshToken)
	assert.Equal(t, "true", resp["active"])
	assert.Equal(t, models.CategoryRefresh, resp["token_type"])
}

func TestIntrospectFailureShape(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	for _, value := range []string{"", "garbage", "a.b.c", uuid.New().String()} {
		resp := env.tokens.Introspect(ctx, value)
		// Exactly one field, and its value is the string "false".
		assert.Equal(t, IntrospectionResponse{"active": "false"}, resp)
	}
}

func TestIntrospectRevokedJWTIsInactive(t *testing.T) {
	env := setupServices(t)
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, client, user, "read")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, client, code)
	require.NoError(t, err)

	require.NoError(t, env.tokens.Revoke(ctx, client, exchanged.AccessToken))

	// The JWT still verifies cryptographically, but the record is gone.
	resp := env.tokens.Introspect(ctx, exchanged.AccessToken)
	assert.Equal(t, IntrospectionResponse{"active": "false"}, resp)
}

func TestRevokeIsSilentForForeignTokens(t *testing.T) {
	env := setupServices(t)
	owner, _ := seedClient(t, env, "read", "https://app.example/cb")
	other, _ := seedClient(t, env, "read", "https://other.example/cb")
	user := seedUser(t, env)
	ctx := context.Background()

	code := approveCode(t, env, owner, user, "read")
	exchanged, err := env.tokens.ExchangeAuthCode(ctx, owner, code)
	require.NoError(t, err)

	// Unresolvable value: no error.
	assert.NoError(t, env.tokens.Revoke(ctx, other, "no-such-token"))

	// Foreign token: no error, and the token survives.
	assert.NoError(t, env.tokens.Revoke(ctx, other, exchanged.RefreshToken))
	_, err = env.store.GetTokenByValue(exchanged.RefreshToken)
	assert.NoError(t, err)

	// Owner revocation actually deletes.
	assert.NoError(t, env.tokens.Revoke(ctx, owner, exchanged.RefreshToken))
	_, err = env.store.GetTokenByValue(exchanged.RefreshToken)
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestNeverExpiringTokensOmitExpiresIn(t *testing.T) {
	env := setupServices(t)
	env.cfg.AccessTokenLifespan.TTL = 0
	client, _ := seedClient(t, env, "read", "https://app.example/cb")
	ctx := context.Background()

	resp, err := env.tokens.ClientCredentials(ctx, client, "read")
	require.NoError(t, err)
	assert.Nil(t, resp.ExpiresIn)

	// The stored row has no expiry and the sweep must leave it alone.
	deleted, err := env.store.DeleteExpiredTokens(time.Now().Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)

	introspected := env.tokens.Introspect(ctx, resp.AccessToken)
	assert.Equal(t, "true", introspected["active"])
	assert.NotContains(t, introspected, "exp")
}
