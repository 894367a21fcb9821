package bootstrap

import (
	"log"
	"net/http"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/core"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/pending"
	"github.com/go-authgate/oauthd/internal/services"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/appleboy/graceful"
	"github.com/gin-gonic/gin"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                *store.Store
	MetricsRecorder   metrics.Recorder
	ClientCache       core.Cache[*models.Client]
	ClientCacheCloser func() error
	Keyring           *token.Keyring
	Signer            *token.Signer
	Verifier          *token.Verifier
	Pending           pending.Store

	// Services
	ClientDirectory      *services.ClientDirectory
	TokenService         *services.TokenService
	AuthorizationService *services.AuthorizationService
	ClientService        *services.ClientService
	ResourceService      *services.ResourceService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	app.initializeBusinessLayer()

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, metrics, cache, and signing keys
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = store.New(app.Config.DatabaseDriver, app.Config.DatabaseDSN)
	if err != nil {
		return err
	}
	log.Printf("[DB] connected (%s)", app.Config.DatabaseDriver)

	app.MetricsRecorder = metrics.Init(app.Config.MetricsEnabled)
	app.ClientCache, app.ClientCacheCloser = initializeClientCache(app.Config)

	app.Keyring = token.NewKeyring(app.DB)
	app.Signer = token.NewSigner(app.Keyring, app.Config)
	app.Verifier = token.NewVerifier(app.Keyring, app.Config.BaseURL)
	app.Pending = pending.NewMemoryStore()

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() {
	app.ClientDirectory = services.NewClientDirectory(
		app.DB,
		app.ClientCache,
		app.Config.CacheTTL,
	)
	app.TokenService = services.NewTokenService(
		app.DB,
		app.ClientDirectory,
		app.Signer,
		app.Verifier,
		app.Config,
		app.MetricsRecorder,
	)
	app.AuthorizationService = services.NewAuthorizationService(
		app.DB,
		app.Pending,
		app.ClientDirectory,
		app.TokenService,
		app.Config,
		app.MetricsRecorder,
	)
	app.ClientService = services.NewClientService(
		app.DB,
		app.ClientDirectory,
		app.MetricsRecorder,
	)
	app.ResourceService = services.NewResourceService(
		app.DB,
		app.Signer,
		app.Verifier,
		app.Config,
		app.MetricsRecorder,
	)
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(
		app.Config,
		app.DB,
		app.Keyring,
		app.TokenService,
		app.AuthorizationService,
		app.ClientService,
		app.ResourceService,
		app.ClientDirectory,
		app.MetricsRecorder,
	)
	app.Router = setupRouter(app.Config, app.DB, app.HandlerSet, app.MetricsRecorder)
	app.Server = createHTTPServer(app.Config, app.Router)
}

// startWithGracefulShutdown starts the server and handles graceful shutdown
func (app *Application) startWithGracefulShutdown() {
	m := graceful.NewManager()

	addServerRunningJob(m, app.Server)
	addServerShutdownJob(m, app.Server)
	addExpirySweepJob(m, app.Config, app.DB, app.MetricsRecorder)
	addGaugeUpdateJob(m, app.Config, app.DB, app.MetricsRecorder)
	addCacheCleanupJob(m, app.ClientCacheCloser)

	<-m.Done()
}
