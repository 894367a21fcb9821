package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-authgate/oauthd/internal/cache"
	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/pending"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store     *store.Store
	pending   *pending.MemoryStore
	clients   *ClientDirectory
	auth      *AuthorizationService
	tokens    *TokenService
	clientSvc *ClientService
	resources *ResourceService
	cfg       *config.Config
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                 "http://localhost:8080",
		AuthCodeLifespan:        config.Lifespan{TTL: 600 * time.Second},
		AccessTokenLifespan:     config.Lifespan{TTL: time.Hour},
		RefreshTokenLifespan:    config.Lifespan{TTL: 30 * 24 * time.Hour},
		IDTokenLifespan:         config.Lifespan{TTL: time.Hour},
		DelegationTokenLifespan: config.Lifespan{TTL: time.Hour},
		CacheTTL:                30 * time.Second,
	}

	rec := metrics.NewNoopMetrics()
	keyring := token.NewKeyring(s)
	signer := token.NewSigner(keyring, cfg)
	verifier := token.NewVerifier(keyring, cfg.BaseURL)

	clients := NewClientDirectory(s, cache.NewMemoryCache[*models.Client](), cfg.CacheTTL)
	tokens := NewTokenService(s, clients, signer, verifier, cfg, rec)
	pendingStore := pending.NewMemoryStore()

	return &testEnv{
		store:     s,
		pending:   pendingStore,
		clients:   clients,
		auth:      NewAuthorizationService(s, pendingStore, clients, tokens, cfg, rec),
		tokens:    tokens,
		clientSvc: NewClientService(s, clients, rec),
		resources: NewResourceService(s, signer, verifier, cfg, rec),
		cfg:       cfg,
	}
}

// seedClient registers a confidential client and returns it with its secret.
func seedClient(t *testing.T, env *testEnv, scope string, redirectURIs ...string) (*models.Client, string) {
	t.Helper()

	client := &models.Client{
		ClientID:      uuid.New().String(),
		ClientName:    "Test App",
		RedirectURIs:  models.StringArray(redirectURIs),
		GrantTypes:    models.StringArray{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials},
		ResponseTypes: models.StringArray{ResponseTypeCode, ResponseTypeToken},
		Scope:         scope,
		IDIssuedAt:    time.Now(),
	}
	secret, err := client.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, env.store.CreateClient(client))
	return client, secret
}

func seedUser(t *testing.T, env *testEnv) *models.User {
	t.Helper()

	user := &models.User{
		UserID:   uuid.New().String(),
		Username: "alice-" + uuid.New().String(),
		Email:    "alice@example.com",
		FullName: "Alice Example",
	}
	require.NoError(t, env.store.CreateUser(user))
	return user
}

// approveCode walks the full front-channel flow and returns the issued code.
func approveCode(t *testing.T, env *testEnv, client *models.Client, user *models.User, scope string) string {
	t.Helper()
	ctx := context.Background()

	payload, err := env.auth.Begin(ctx, &AuthRequest{
		ClientID:     client.ClientID,
		ResponseType: ResponseTypeCode,
		Scope:        scope,
		State:        "st",
	})
	require.NoError(t, err)

	redirect, err := env.auth.Finish(ctx, payload.RequestID, true, payload.Scopes, user.UserID)
	require.NoError(t, err)

	return extractQueryParam(t, redirect, "code")
}
