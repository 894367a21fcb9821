package bootstrap

import (
	"log"
	"net/http"
	"time"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/middleware"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter configures the Gin router with all routes and middleware
func setupRouter(
	cfg *config.Config,
	db *store.Store,
	h handlerSet,
	m metrics.Recorder,
) *gin.Engine {
	setupGinMode(cfg)
	r := gin.New()

	r.Use(metrics.HTTPMetricsMiddleware(m))
	r.Use(gin.Logger(), gin.Recovery())

	setupSessionMiddleware(r, cfg)

	r.GET("/health", h.health.Health)
	setupMetricsEndpoint(r, cfg)

	rateLimit := setupRateLimiting(cfg)
	setupAllRoutes(r, h, rateLimit)

	log.Printf("Authorization server starting on %s (issuer %s)", cfg.ServerAddr, cfg.BaseURL)

	return r
}

// setupSessionMiddleware configures session handling middleware
func setupSessionMiddleware(r *gin.Engine, cfg *config.Config) {
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
		Secure:   cfg.IsProduction,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("oauth_session", sessionStore))
}

// setupMetricsEndpoint configures the Prometheus metrics endpoint
func setupMetricsEndpoint(r *gin.Engine, cfg *config.Config) {
	switch {
	case !cfg.MetricsEnabled:
		log.Printf("Prometheus metrics disabled")
	case cfg.MetricsToken != "":
		log.Printf("Prometheus metrics enabled at /metrics with Bearer token authentication")
		r.GET(
			"/metrics",
			middleware.MetricsAuthMiddleware(cfg.MetricsToken),
			gin.WrapH(promhttp.Handler()),
		)
	default:
		log.Printf("Prometheus metrics enabled at /metrics (no authentication)")
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// setupRateLimiting builds the shared rate limit middleware. Returns a
// passthrough when rate limiting is disabled or the limiter cannot start.
func setupRateLimiting(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}

	limiter, err := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitRequestsPerMinute,
		StoreType:         middleware.RateLimitStoreType(cfg.RateLimitStore),
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		RedisDB:           cfg.RedisDB,
		CleanupInterval:   5 * time.Minute,
	})
	if err != nil {
		log.Printf("Rate limiter unavailable, continuing without: %v", err)
		return func(c *gin.Context) { c.Next() }
	}
	log.Printf("Rate limiting enabled: %d req/min (%s store)",
		cfg.RateLimitRequestsPerMinute, cfg.RateLimitStore)
	return limiter
}

// setupAllRoutes configures all application routes
func setupAllRoutes(r *gin.Engine, h handlerSet, rateLimit gin.HandlerFunc) {
	// Discovery (public)
	r.GET("/.well-known/oauth-authorization-server", h.discovery.Metadata)
	r.GET("/.well-known/openid-configuration", h.discovery.Metadata)
	r.GET("/.well-known/jwks", h.discovery.JWKS)
	r.GET("/.well-known/jwks/:kid", h.discovery.JWKSByKID)

	// Session binding for the companion login system
	r.POST("/session", h.session.Bind)
	r.DELETE("/session", h.session.Unbind)

	// Front-channel authorization. The consent decision requires a bound
	// resource owner session.
	r.GET("/authorize", rateLimit, h.authorize.Authorize)
	r.POST("/authorize",
		rateLimit,
		middleware.RequireSessionUser(),
		h.authorize.Consent,
	)

	// Back-channel token operations
	token := r.Group("/token")
	{
		token.POST("", rateLimit, h.token.Token)
		token.POST("/introspect", rateLimit, h.introspect.Introspect)
		token.POST("/revoke", rateLimit, h.token.Revoke)
	}

	// Dynamic client registration and management
	clients := r.Group("/clients")
	{
		clients.POST("", rateLimit, h.client.Register)
		clients.GET("/:clientId", h.client.Get)
		clients.PUT("/:clientId", h.client.Update)
		clients.DELETE("/:clientId", h.client.Delete)
	}

	// Resource server registration and delegation tokens
	resource := r.Group("/resource")
	{
		resource.POST("", rateLimit, h.resource.Register)
		resource.DELETE("", h.introspect.Deregister)
		resource.GET("/token", middleware.RequireSessionUser(), h.resource.MintUserToken)
		resource.POST("/token/validate", h.introspect.ValidateUserToken)
	}
}

// setupGinMode sets Gin mode based on environment configuration
func setupGinMode(cfg *config.Config) {
	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
		return
	}
	gin.SetMode(gin.DebugMode)
}
