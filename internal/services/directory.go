package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-authgate/oauthd/internal/core"
	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"
)

// ClientDirectory resolves client metadata through a cache-aside layer.
// Reads on the hot paths (authorize, token) go through the cache; the
// registration service invalidates on update and delete.
type ClientDirectory struct {
	store *store.Store
	cache core.Cache[*models.Client]
	ttl   time.Duration
}

func NewClientDirectory(
	s *store.Store,
	cache core.Cache[*models.Client],
	ttl time.Duration,
) *ClientDirectory {
	return &ClientDirectory{store: s, cache: cache, ttl: ttl}
}

// Get returns the client for clientID, or ErrClientNotFound.
func (d *ClientDirectory) Get(ctx context.Context, clientID string) (*models.Client, error) {
	client, err := d.cache.GetWithFetch(ctx, clientID, d.ttl,
		func(ctx context.Context, key string) (*models.Client, error) {
			return d.store.GetClient(key)
		})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// Invalidate drops the cached entry for clientID.
func (d *ClientDirectory) Invalidate(ctx context.Context, clientID string) {
	_ = d.cache.Delete(ctx, clientID)
}
