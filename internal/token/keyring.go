// Package token implements the RS256 signing subsystem: per-entity key
// management, JWT minting and fail-closed verification.
package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/go-authgate/oauthd/internal/models"
	"github.com/go-authgate/oauthd/internal/store"

	jose "github.com/go-jose/go-jose/v4"
)

const rsaKeyBits = 2048

// ErrKeyNotFound is returned by lookup-only key access for unknown key ids.
var ErrKeyNotFound = errors.New("token: signing key not found")

// Key id namespaces. Each signing context gets its own key pair so that a
// token minted for one audience can never verify under another's key.
func KeyIDForClient(clientID string) string {
	return "token_" + clientID
}

func KeyIDForIDToken() string {
	return "openid_idtoken"
}

func KeyIDForResourceServer(serverID string) string {
	return "resource_" + serverID
}

// Keyring manages persisted RSA key pairs, one per key id. Keys are created
// lazily on first use and cached in memory afterwards. When two instances
// race to create the same key the database unique constraint decides: the
// loser discards its candidate and adopts the winner's row.
type Keyring struct {
	store *store.Store

	mu   sync.RWMutex
	keys map[string]*rsa.PrivateKey
}

func NewKeyring(s *store.Store) *Keyring {
	return &Keyring{
		store: s,
		keys:  make(map[string]*rsa.PrivateKey),
	}
}

// GetOrCreate returns the private key for kid, generating and persisting a
// fresh 2048-bit key when none exists yet.
func (k *Keyring) GetOrCreate(kid string) (*rsa.PrivateKey, error) {
	if key := k.cached(kid); key != nil {
		return key, nil
	}

	record, err := k.store.GetSigningKey(kid)
	if err == nil {
		return k.adopt(kid, record)
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	candidate, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key %s: %w", kid, err)
	}
	record, err = encodeKey(kid, candidate)
	if err != nil {
		return nil, err
	}

	switch err := k.store.CreateSigningKey(record); {
	case err == nil:
		k.cache(kid, candidate)
		return candidate, nil
	case errors.Is(err, store.ErrDuplicateKey):
		// Lost the creation race. Re-read the winner's key.
		record, err := k.store.GetSigningKey(kid)
		if err != nil {
			return nil, err
		}
		return k.adopt(kid, record)
	default:
		return nil, err
	}
}

// Get returns the private key for kid without ever creating one. Verification
// paths use this so that an unknown key id fails instead of minting a key.
func (k *Keyring) Get(kid string) (*rsa.PrivateKey, error) {
	if key := k.cached(kid); key != nil {
		return key, nil
	}

	record, err := k.store.GetSigningKey(kid)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return k.adopt(kid, record)
}

// PublicKey returns the JWK form of the public key for kid.
func (k *Keyring) PublicKey(kid string) (*jose.JSONWebKey, error) {
	key, err := k.Get(kid)
	if err != nil {
		return nil, err
	}
	return &jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     kid,
		Algorithm: "RS256",
		Use:       "sig",
	}, nil
}

// PublicKeys returns all persisted public keys as a JWK set.
func (k *Keyring) PublicKeys() (*jose.JSONWebKeySet, error) {
	records, err := k.store.ListSigningKeys()
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(records))}
	for _, record := range records {
		priv, err := decodeKey(&record)
		if err != nil {
			return nil, err
		}
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       &priv.PublicKey,
			KeyID:     record.KID,
			Algorithm: "RS256",
			Use:       "sig",
		})
	}
	return set, nil
}

func (k *Keyring) cached(kid string) *rsa.PrivateKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.keys[kid]
}

func (k *Keyring) cache(kid string, key *rsa.PrivateKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[kid] = key
}

func (k *Keyring) adopt(kid string, record *models.SigningKey) (*rsa.PrivateKey, error) {
	key, err := decodeKey(record)
	if err != nil {
		return nil, err
	}
	k.cache(kid, key)
	return key, nil
}

func encodeKey(kid string, key *rsa.PrivateKey) (*models.SigningKey, error) {
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode public key %s: %w", kid, err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	return &models.SigningKey{
		KID:           kid,
		PrivateKeyPEM: string(privPEM),
		PublicKeyPEM:  string(pubPEM),
	}, nil
}

func decodeKey(record *models.SigningKey) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(record.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("malformed key PEM for %s", record.KID)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", record.KID, err)
	}
	return key, nil
}
