package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-authgate/oauthd/internal/metrics"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"

	"github.com/google/uuid"
)

// ErrInvalidRegistrationToken is returned when a client management call
// presents a bearer token that does not match the client's registration
// access token.
var ErrInvalidRegistrationToken = errors.New("invalid registration access token")

// AuthMethodNone marks a public client: no secret is issued and secret
// authentication never succeeds.
const AuthMethodNone = "none"

// ClientMetadata is the registration request body and the metadata part of
// every registration response.
type ClientMetadata struct {
	RedirectURIs            []string          `json:"redirect_uris"`
	ClientName              string            `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string            `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string          `json:"grant_types,omitempty"`
	ResponseTypes           []string          `json:"response_types,omitempty"`
	Scope                   string            `json:"scope,omitempty"`
	ExtraData               map[string]string `json:"extra_data,omitempty"`
}

// RegistrationResponse is the one-time registration answer. The secret and
// the registration access token are shown here and never again.
type RegistrationResponse struct {
	ClientID                string `json:"client_id"`
	ClientSecret            string `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64  `json:"client_id_issued_at"`
	ClientSecretExpiresAt   int64  `json:"client_secret_expires_at"`
	RegistrationAccessToken string `json:"registration_access_token,omitempty"`
	ClientMetadata
}

// ClientService implements dynamic client registration and the
// token-authenticated management operations on top of it.
type ClientService struct {
	store   *store.Store
	clients *ClientDirectory
	metrics metrics.Recorder
}

func NewClientService(s *store.Store, clients *ClientDirectory, m metrics.Recorder) *ClientService {
	return &ClientService{store: s, clients: clients, metrics: m}
}

// Register creates a client from the submitted metadata. Missing optional
// fields get protocol defaults; redirect_uris is the one hard requirement.
func (s *ClientService) Register(
	ctx context.Context,
	meta *ClientMetadata,
) (*RegistrationResponse, error) {
	if len(meta.RedirectURIs) == 0 {
		s.metrics.RecordClientRegistered(false)
		return nil, ErrInvalidClientMetadata
	}
	applyMetadataDefaults(meta)

	client := &models.Client{
		ClientID:                uuid.New().String(),
		ClientName:              meta.ClientName,
		RedirectURIs:            models.StringArray(meta.RedirectURIs),
		TokenEndpointAuthMethod: meta.TokenEndpointAuthMethod,
		GrantTypes:              models.StringArray(meta.GrantTypes),
		ResponseTypes:           models.StringArray(meta.ResponseTypes),
		Scope:                   meta.Scope,
		ExtraData:               models.JSONMap(meta.ExtraData),
		IDIssuedAt:              time.Now(),
	}

	var secret string
	if meta.TokenEndpointAuthMethod != AuthMethodNone {
		var err error
		secret, err = client.GenerateSecret()
		if err != nil {
			s.metrics.RecordClientRegistered(false)
			return nil, err
		}
	}

	registrationToken, err := client.GenerateRegistrationToken()
	if err != nil {
		s.metrics.RecordClientRegistered(false)
		return nil, err
	}

	if err := s.store.CreateClient(client); err != nil {
		s.metrics.RecordDatabaseQueryError("create_client")
		s.metrics.RecordClientRegistered(false)
		return nil, err
	}

	s.metrics.RecordClientRegistered(true)
	return &RegistrationResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientIDIssuedAt:        client.IDIssuedAt.Unix(),
		ClientSecretExpiresAt:   0, // issued secrets do not expire
		RegistrationAccessToken: registrationToken,
		ClientMetadata:          metadataOf(client),
	}, nil
}

// Authenticate resolves a client for a management call. The bearer token
// must match the registration access token issued at registration time.
// Lookups bypass the cache: the stored token hash must be current.
func (s *ClientService) Authenticate(
	ctx context.Context,
	clientID, bearerToken string,
) (*models.Client, error) {
	client, err := s.store.GetClient(clientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if !client.ValidateRegistrationToken(bearerToken) {
		return nil, ErrInvalidRegistrationToken
	}
	return client, nil
}

// Get returns the client's current metadata.
func (s *ClientService) Get(client *models.Client) *RegistrationResponse {
	return &RegistrationResponse{
		ClientID:              client.ClientID,
		ClientIDIssuedAt:      client.IDIssuedAt.Unix(),
		ClientSecretExpiresAt: 0,
		ClientMetadata:        metadataOf(client),
	}
}

// Update replaces the client's metadata. Identity and credentials survive:
// client id, secret, issuance time and the registration access token are
// all preserved.
func (s *ClientService) Update(
	ctx context.Context,
	client *models.Client,
	meta *ClientMetadata,
) (*RegistrationResponse, error) {
	if len(meta.RedirectURIs) == 0 {
		return nil, ErrInvalidClientMetadata
	}
	applyMetadataDefaults(meta)

	client.ClientName = meta.ClientName
	client.RedirectURIs = models.StringArray(meta.RedirectURIs)
	client.TokenEndpointAuthMethod = meta.TokenEndpointAuthMethod
	client.GrantTypes = models.StringArray(meta.GrantTypes)
	client.ResponseTypes = models.StringArray(meta.ResponseTypes)
	client.Scope = meta.Scope
	client.ExtraData = models.JSONMap(meta.ExtraData)

	if err := s.store.UpdateClient(client); err != nil {
		s.metrics.RecordDatabaseQueryError("update_client")
		return nil, err
	}
	s.clients.Invalidate(ctx, client.ClientID)

	return &RegistrationResponse{
		ClientID:              client.ClientID,
		ClientIDIssuedAt:      client.IDIssuedAt.Unix(),
		ClientSecretExpiresAt: 0,
		ClientMetadata:        metadataOf(client),
	}, nil
}

// Delete removes the client together with every token issued to it.
func (s *ClientService) Delete(ctx context.Context, client *models.Client) error {
	if err := s.store.DeleteTokensByClientID(client.ClientID); err != nil {
		s.metrics.RecordDatabaseQueryError("delete_tokens")
		return err
	}
	if err := s.store.DeleteClient(client.ClientID); err != nil {
		s.metrics.RecordDatabaseQueryError("delete_client")
		return err
	}
	s.clients.Invalidate(ctx, client.ClientID)
	return nil
}

func applyMetadataDefaults(meta *ClientMetadata) {
	if meta.TokenEndpointAuthMethod == "" {
		meta.TokenEndpointAuthMethod = "client_secret_basic"
	}
	if len(meta.GrantTypes) == 0 {
		meta.GrantTypes = []string{GrantAuthorizationCode}
	}
	if len(meta.ResponseTypes) == 0 {
		meta.ResponseTypes = []string{ResponseTypeCode}
	}
}

func metadataOf(client *models.Client) ClientMetadata {
	return ClientMetadata{
		RedirectURIs:            client.RedirectURIs,
		ClientName:              client.ClientName,
		TokenEndpointAuthMethod: client.TokenEndpointAuthMethod,
		GrantTypes:              client.GrantTypes,
		ResponseTypes:           client.ResponseTypes,
		Scope:                   client.Scope,
		ExtraData:               client.ExtraData,
	}
}
