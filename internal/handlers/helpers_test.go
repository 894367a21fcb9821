package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-authgate/oauthd/internal/cache"
	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/middleware"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/pending"
	"github.com/go-authgate/oauthd/internal/services"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// ─── Test infrastructure ─────────────────────────────────────────────────────

type testApp struct {
	router *gin.Engine
	store  *store.Store
	cfg    *config.Config
}

// setupApp wires the full HTTP surface against an in-memory database.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                 "http://localhost:8080",
		SessionSecret:           "test-session-secret",
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

	directory := services.NewClientDirectory(s, cache.NewMemoryCache[*models.Client](), cfg.CacheTTL)
	tokens := services.NewTokenService(s, directory, signer, verifier, cfg, rec)
	auth := services.NewAuthorizationService(s, pending.NewMemoryStore(), directory, tokens, cfg, rec)
	clientSvc := services.NewClientService(s, directory, rec)
	resources := services.NewResourceService(s, signer, verifier, cfg, rec)

	authorizeHandler := NewAuthorizeHandler(auth)
	tokenHandler := NewTokenHandler(tokens, directory, rec)
	introspectHandler := NewIntrospectHandler(tokens, resources)
	clientHandler := NewClientHandler(clientSvc)
	resourceHandler := NewResourceHandler(resources)
	discoveryHandler := NewDiscoveryHandler(keyring, cfg)
	sessionHandler := NewSessionHandler(s)
	healthHandler := NewHealthHandler(s)

	r := gin.New()
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("oauth_session", sessionStore))

	r.GET("/.well-known/oauth-authorization-server", discoveryHandler.Metadata)
	r.GET("/.well-known/jwks", discoveryHandler.JWKS)
	r.GET("/.well-known/jwks/:kid", discoveryHandler.JWKSByKID)
	r.POST("/session", sessionHandler.Bind)
	r.DELETE("/session", sessionHandler.Unbind)
	r.GET("/authorize", authorizeHandler.Authorize)
	r.POST("/authorize", middleware.RequireSessionUser(), authorizeHandler.Consent)
	r.POST("/token", tokenHandler.Token)
	r.POST("/token/introspect", introspectHandler.Introspect)
	r.POST("/token/revoke", tokenHandler.Revoke)
	r.POST("/clients", clientHandler.Register)
	r.GET("/clients/:clientId", clientHandler.Get)
	r.PUT("/clients/:clientId", clientHandler.Update)
	r.DELETE("/clients/:clientId", clientHandler.Delete)
	r.POST("/resource", resourceHandler.Register)
	r.DELETE("/resource", introspectHandler.Deregister)
	r.GET("/resource/token", middleware.RequireSessionUser(), resourceHandler.MintUserToken)
	r.POST("/resource/token/validate", introspectHandler.ValidateUserToken)
	r.GET("/health", healthHandler.Health)

	return &testApp{router: r, store: s, cfg: cfg}
}

// seedClient inserts a confidential client allowed every grant and returns
// it with its plaintext secret.
func seedClient(t *testing.T, app *testApp, scope string, redirectURIs ...string) (*models.Client, string) {
	t.Helper()

	client := &models.Client{
		ClientID:     uuid.New().String(),
		ClientName:   "Test App",
		RedirectURIs: models.StringArray(redirectURIs),
		GrantTypes: models.StringArray{
			services.GrantAuthorizationCode,
			services.GrantRefreshToken,
			services.GrantClientCredentials,
		},
		ResponseTypes: models.StringArray{services.ResponseTypeCode, services.ResponseTypeToken},
		Scope:         scope,
		IDIssuedAt:    time.Now(),
	}
	secret, err := client.GenerateSecret()
	require.NoError(t, err)
	require.NoError(t, app.store.CreateClient(client))
	return client, secret
}

func seedPublicClient(t *testing.T, app *testApp, scope string, redirectURIs ...string) *models.Client {
	t.Helper()

	client := &models.Client{
		ClientID:                uuid.New().String(),
		ClientName:              "Native App",
		RedirectURIs:            models.StringArray(redirectURIs),
		TokenEndpointAuthMethod: services.AuthMethodNone,
		GrantTypes: models.StringArray{
			services.GrantAuthorizationCode,
			services.GrantRefreshToken,
		},
		ResponseTypes: models.StringArray{services.ResponseTypeCode},
		Scope:         scope,
		IDIssuedAt:    time.Now(),
	}
	require.NoError(t, app.store.CreateClient(client))
	return client
}

func seedUser(t *testing.T, app *testApp) *models.User {
	t.Helper()

	user := &models.User{
		UserID:   uuid.New().String(),
		Username: "alice-" + uuid.New().String(),
		Email:    "alice@example.com",
		FullName: "Alice Example",
	}
	require.NoError(t, app.store.CreateUser(user))
	return user
}

// bindSession logs a user into the cookie session and returns the cookies
// to attach to subsequent requests.
func bindSession(t *testing.T, app *testApp, userID string) []*http.Cookie {
	t.Helper()

	form := url.Values{"user_id": {userID}}
	req := httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies
}

// postForm sends a form-encoded POST. basicAuth carries client id and
// secret, nil for none.
func postForm(
	t *testing.T,
	app *testApp,
	path string,
	form url.Values,
	basicAuth *[2]string,
	cookies ...*http.Cookie,
) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth != nil {
		creds := base64.StdEncoding.EncodeToString([]byte(basicAuth[0] + ":" + basicAuth[1]))
		req.Header.Set("Authorization", "Basic "+creds)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, app *testApp, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func newRequestWithCookies(t *testing.T, method, path string, cookies []*http.Cookie) *http.Request {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func serve(app *testApp, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

// authorizeAndConsent walks the front channel for a code and returns it.
func authorizeAndConsent(
	t *testing.T,
	app *testApp,
	client *models.Client,
	user *models.User,
	scope string,
) string {
	t.Helper()

	query := url.Values{
		"client_id":     {client.ClientID},
		"response_type": {services.ResponseTypeCode},
		"scope":         {scope},
		"state":         {"st"},
	}
	w := getPath(t, app, "/authorize?"+query.Encode())
	require.Equal(t, http.StatusOK, w.Code)

	var payload services.ConsentPayload
	require.NoError(t, json.NewDecoder(w.Body).Decode(&payload))

	cookies := bindSession(t, app, user.UserID)
	form := url.Values{"reqId": {payload.RequestID}, "approve": {"true"}}
	for _, s := range payload.Scopes {
		form.Set("scope_"+s, "on")
	}
	consent := postForm(t, app, "/authorize", form, nil, cookies...)
	require.Equal(t, http.StatusFound, consent.Code)

	redirect, err := url.Parse(consent.Header().Get("Location"))
	require.NoError(t, err)
	code := redirect.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}
