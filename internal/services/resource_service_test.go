package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceServerRegistration(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	resp, err := env.resources.Register(ctx, "https://rs.example/", "read")
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ServerID)
	assert.NotEmpty(t, resp.Secret)
	// Trailing slash is normalized away.
	assert.Equal(t, "https://rs.example", resp.BaseURL)

	// The issued secret authenticates the server.
	server, err := env.resources.Authenticate(ctx, resp.ServerID, resp.Secret)
	require.NoError(t, err)
	assert.Equal(t, resp.ServerID, server.ServerID)

	_, err = env.resources.Authenticate(ctx, resp.ServerID, "wrong")
	assert.ErrorIs(t, err, ErrResourceServerNotFound)
}

func TestResourceServerBaseURLUnique(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	_, err := env.resources.Register(ctx, "https://rs.example", "read")
	require.NoError(t, err)

	_, err = env.resources.Register(ctx, "https://rs.example/", "write")
	assert.ErrorIs(t, err, ErrBaseURLTaken)
}

func TestResourceServerRegistrationRejectsBadURL(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	_, err := env.resources.Register(ctx, "", "read")
	assert.ErrorIs(t, err, ErrInvalidClientMetadata)

	_, err = env.resources.Register(ctx, "not a url", "read")
	assert.ErrorIs(t, err, ErrInvalidClientMetadata)
}

func TestResourceServerDeregister(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()

	reg, err := env.resources.Register(ctx, "https://rs.example", "read")
	require.NoError(t, err)
	server, err := env.resources.Authenticate(ctx, reg.ServerID, reg.Secret)
	require.NoError(t, err)

	require.NoError(t, env.resources.Deregister(ctx, server))

	_, err = env.resources.Authenticate(ctx, reg.ServerID, reg.Secret)
	assert.ErrorIs(t, err, ErrResourceServerNotFound)

	// The base URL is free again and the replacement gets a new identity.
	fresh, err := env.resources.Register(ctx, "https://rs.example", "read")
	require.NoError(t, err)
	assert.NotEqual(t, reg.ServerID, fresh.ServerID)

	_, err = env.resources.MintUserToken(ctx, reg.ServerID, "any-user")
	assert.ErrorIs(t, err, ErrResourceServerNotFound)
}

func TestDelegationTokenRoundTrip(t *testing.T) {
	env := setupServices(t)
	user := seedUser(t, env)
	ctx := context.Background()

	reg, err := env.resources.Register(ctx, "https://rs.example", "read")
	require.NoError(t, err)
	server, err := env.resources.Authenticate(ctx, reg.ServerID, reg.Secret)
	require.NoError(t, err)

	signed, err := env.resources.MintUserToken(ctx, reg.ServerID, user.UserID)
	require.NoError(t, err)

	result := env.resources.ValidateUserToken(ctx, server, signed)
	assert.True(t, result.Valid)
	assert.Equal(t, user.UserID, result.UserID)
}

func TestDelegationTokenCrossServerRejected(t *testing.T) {
	env := setupServices(t)
	user := seedUser(t, env)
	ctx := context.Background()

	regA, err := env.resources.Register(ctx, "https://rs-a.example", "read")
	require.NoError(t, err)
	regB, err := env.resources.Register(ctx, "https://rs-b.example", "read")
	require.NoError(t, err)

	serverB, err := env.resources.Authenticate(ctx, regB.ServerID, regB.Secret)
	require.NoError(t, err)

	// Minted for server A, presented by server B.
	signed, err := env.resources.MintUserToken(ctx, regA.ServerID, user.UserID)
	require.NoError(t, err)

	result := env.resources.ValidateUserToken(ctx, serverB, signed)
	assert.False(t, result.Valid)
	assert.Empty(t, result.UserID)
}

func TestMintUserTokenRequiresExistingParties(t *testing.T) {
	env := setupServices(t)
	user := seedUser(t, env)
	ctx := context.Background()

	reg, err := env.resources.Register(ctx, "https://rs.example", "read")
	require.NoError(t, err)

	_, err = env.resources.MintUserToken(ctx, "ghost-server", user.UserID)
	assert.ErrorIs(t, err, ErrResourceServerNotFound)

	_, err = env.resources.MintUserToken(ctx, reg.ServerID, "ghost-user")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
