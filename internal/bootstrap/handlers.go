package bootstrap

import (
	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/handlers"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/services"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"
)

// handlerSet groups all HTTP handlers
type handlerSet struct {
	authorize  *handlers.AuthorizeHandler
	token      *handlers.TokenHandler
	introspect *handlers.IntrospectHandler
	client     *handlers.ClientHandler
	resource   *handlers.ResourceHandler
	discovery  *handlers.DiscoveryHandler
	session    *handlers.SessionHandler
	health     *handlers.HealthHandler
}

func initializeHandlers(
	cfg *config.Config,
	db *store.Store,
	keyring *token.Keyring,
	tokens *services.TokenService,
	auth *services.AuthorizationService,
	clients *services.ClientService,
	resources *services.ResourceService,
	directory *services.ClientDirectory,
	m metrics.Recorder,
) handlerSet {
	return handlerSet{
		authorize:  handlers.NewAuthorizeHandler(auth),
		token:      handlers.NewTokenHandler(tokens, directory, m),
		introspect: handlers.NewIntrospectHandler(tokens, resources),
		client:     handlers.NewClientHandler(clients),
		resource:   handlers.NewResourceHandler(resources),
		discovery:  handlers.NewDiscoveryHandler(keyring, cfg),
		session:    handlers.NewSessionHandler(db),
		health:     handlers.NewHealthHandler(db),
	}
}
