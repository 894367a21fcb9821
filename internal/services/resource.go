package services

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/go-authgate/oauthd/internal/config"
	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"
	"github.com/go-authgate/oauthd/internal/token"

	"github.com/google/uuid"
)

// ResourceRegistrationResponse is the one-time answer to a resource server
// registration. The secret is shown here and never again.
type ResourceRegistrationResponse struct {
	ServerID string `json:"id"`
	Secret   string `json:"secret"`
	BaseURL  string `json:"base_url"`
	Scope    string `json:"scope,omitempty"`
}

// DelegationValidation is the outcome of validating a delegated user token.
type DelegationValidation struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

// ResourceService manages resource server registrations and the delegated
// user tokens minted under each server's own key.
type ResourceService struct {
	store    *store.Store
	signer   *token.Signer
	verifier *token.Verifier
	cfg      *config.Config
	metrics  metrics.Recorder
}

func NewResourceService(
	s *store.Store,
	signer *token.Signer,
	verifier *token.Verifier,
	cfg *config.Config,
	m metrics.Recorder,
) *ResourceService {
	return &ResourceService{
		store:    s,
		signer:   signer,
		verifier: verifier,
		cfg:      cfg,
		metrics:  m,
	}
}

// Register creates a resource server. Base URLs are unique: a second
// registration for the same deployment is rejected.
func (s *ResourceService) Register(
	ctx context.Context,
	baseURL, scope string,
) (*ResourceRegistrationResponse, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrInvalidClientMetadata
	}
	if parsed, err := url.Parse(baseURL); err != nil || parsed.Host == "" {
		return nil, ErrInvalidClientMetadata
	}

	server := &models.ResourceServer{
		ServerID: uuid.New().String(),
		BaseURL:  baseURL,
		Scope:    scope,
	}
	secret, err := server.GenerateSecret()
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateResourceServer(server); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, ErrBaseURLTaken
		}
		s.metrics.RecordDatabaseQueryError("create_resource_server")
		return nil, err
	}

	return &ResourceRegistrationResponse{
		ServerID: server.ServerID,
		Secret:   secret,
		BaseURL:  server.BaseURL,
		Scope:    server.Scope,
	}, nil
}

// Authenticate resolves a resource server by id and verifies its secret.
func (s *ResourceService) Authenticate(
	ctx context.Context,
	serverID, secret string,
) (*models.ResourceServer, error) {
	server, err := s.store.GetResourceServer(serverID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrResourceServerNotFound
		}
		return nil, err
	}
	if !server.ValidateSecret(secret) {
		return nil, ErrResourceServerNotFound
	}
	return server, nil
}

// Deregister removes an authenticated resource server's registration. The
// per-server signing key row stays behind; a re-registration of the same
// base URL gets a fresh server id and key namespace.
func (s *ResourceService) Deregister(ctx context.Context, server *models.ResourceServer) error {
	if err := s.store.DeleteResourceServer(server.ServerID); err != nil {
		s.metrics.RecordDatabaseQueryError("delete_resource_server")
		return err
	}
	return nil
}

// MintUserToken mints a delegated token a resource server can pass to its
// own trusted collaborators on behalf of the user. The audience is the
// server itself; no scopes are attached.
func (s *ResourceService) MintUserToken(
	ctx context.Context,
	serverID, userID string,
) (string, error) {
	if _, err := s.store.GetResourceServer(serverID); err != nil {
		s.metrics.RecordDelegationTokenIssued(false)
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrResourceServerNotFound
		}
		return "", err
	}
	if _, err := s.store.GetUserByUserID(userID); err != nil {
		s.metrics.RecordDelegationTokenIssued(false)
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}

	signed, err := s.signer.SignDelegationToken(serverID, userID, s.cfg.BaseURL)
	if err != nil {
		s.metrics.RecordDelegationTokenIssued(false)
		return "", err
	}
	s.metrics.RecordDelegationTokenIssued(true)
	return signed, nil
}

// ValidateUserToken checks a delegated token presented by the server it
// was minted for. Tokens minted for another server fail the audience check
// even with a genuine signature, and tokens whose subject no longer exists
// are invalid.
func (s *ResourceService) ValidateUserToken(
	ctx context.Context,
	server *models.ResourceServer,
	tokenString string,
) *DelegationValidation {
	result := s.verifier.VerifyDelegationToken(tokenString, server.ServerID)
	if !result.Valid || result.Subject == "" {
		s.metrics.RecordDelegationTokenValidation("invalid")
		return &DelegationValidation{Valid: false}
	}

	if _, err := s.store.GetUserByUserID(result.Subject); err != nil {
		s.metrics.RecordDelegationTokenValidation("invalid")
		return &DelegationValidation{Valid: false}
	}

	s.metrics.RecordDelegationTokenValidation("valid")
	return &DelegationValidation{Valid: true, UserID: result.Subject}
}
