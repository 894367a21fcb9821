package models

import (
	"database/sql/driver"
	"encoding/base32"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-authgate/oauthd/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Base32 characters, but lowercased.
const lowerBase32Chars = "abcdefghijklmnopqrstuvwxyz234567"

// base32 encoder that uses lowered characters without padding.
var base32Lower = base32.NewEncoding(lowerBase32Chars).WithPadding(base32.NoPadding)

// randomSecret generates a 32-byte random secret with the given prefix.
// The prefix makes the secret easy for code scanners to flag.
func randomSecret(prefix string) (string, error) {
	rBytes, err := util.CryptoRandomBytes(32)
	if err != nil {
		return "", err
	}
	return prefix + base32Lower.EncodeToString(rBytes), nil
}

// Client is a registered OAuth 2.0 client application.
// SecretHash is empty for public clients; SecretExpiresAt nil means the secret
// never expires.
type Client struct {
	ID                      int64       `gorm:"primaryKey;autoIncrement"`
	ClientID                string      `gorm:"uniqueIndex;not null"`
	SecretHash              string      // bcrypt hash; empty for public clients
	ClientName              string
	RedirectURIs            StringArray `gorm:"type:json;not null"`
	TokenEndpointAuthMethod string      `gorm:"not null;default:'client_secret_basic'"`
	GrantTypes              StringArray `gorm:"type:json"`
	ResponseTypes           StringArray `gorm:"type:json"`
	Scope                   string      `gorm:"not null"` // space-separated registered ceiling
	IDIssuedAt              time.Time
	SecretExpiresAt         *time.Time
	RegistrationTokenHash   string `gorm:"not null"`
	RegistrationTokenSalt   string `gorm:"not null"`
	ExtraData               JSONMap `gorm:"type:json"`
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// GenerateSecret generates a fresh client secret, stores its bcrypt hash on
// the model, and returns the plaintext for the one-time registration response.
func (c *Client) GenerateSecret() (string, error) {
	secret, err := randomSecret("oad_")
	if err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	c.SecretHash = string(hashed)
	return secret, nil
}

// ValidateSecret validates the given secret against the stored bcrypt hash.
// Public clients (no stored hash) never validate via secret.
func (c *Client) ValidateSecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	if c.SecretExpiresAt != nil && time.Now().After(*c.SecretExpiresAt) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// GenerateRegistrationToken generates the bearer credential used for
// self-service client management and stores its salted PBKDF2 hash.
func (c *Client) GenerateRegistrationToken() (string, error) {
	token, err := util.CryptoRandomString(40)
	if err != nil {
		return "", err
	}
	salt, err := util.CryptoRandomString(16)
	if err != nil {
		return "", err
	}
	c.RegistrationTokenSalt = salt
	c.RegistrationTokenHash = util.HashToken(token, salt)
	return token, nil
}

// ValidateRegistrationToken checks a presented registration access token.
func (c *Client) ValidateRegistrationToken(token string) bool {
	if token == "" || c.RegistrationTokenHash == "" {
		return false
	}
	return util.HashToken(token, c.RegistrationTokenSalt) == c.RegistrationTokenHash
}

// IsPublic reports whether the client was registered without a secret.
func (c *Client) IsPublic() bool {
	return c.SecretHash == ""
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// AllowsResponseType reports whether the client registered the response type.
func (c *Client) AllowsResponseType(responseType string) bool {
	for _, rt := range c.ResponseTypes {
		if rt == responseType {
			return true
		}
	}
	return false
}

// AllowsGrantType reports whether the client registered the grant type.
func (c *Client) AllowsGrantType(grantType string) bool {
	for _, gt := range c.GrantTypes {
		if gt == grantType {
			return true
		}
	}
	return false
}

// ScopeSet returns the registered scope ceiling as a lookup set.
func (c *Client) ScopeSet() map[string]bool {
	return ScopeSet(c.Scope)
}

// TableName overrides the table name used by Client to `oauth_clients`
func (Client) TableName() string {
	return "oauth_clients"
}

// ScopeSet parses a space-separated scope string into a boolean lookup map.
func ScopeSet(scope string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Fields(scope) {
		set[s] = true
	}
	return set
}

// ScopeSubset reports whether every scope in requested is present in granted.
func ScopeSubset(granted, requested string) bool {
	set := ScopeSet(granted)
	for _, s := range strings.Fields(requested) {
		if !set[s] {
			return false
		}
	}
	return true
}

// StringArray is a custom type for []string that can be stored as JSON in database
type StringArray []string

// Scan implements sql.Scanner interface
func (s *StringArray) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
}

// Value implements driver.Valuer interface
func (s StringArray) Value() (driver.Value, error) {
	if len(s) == 0 {
		return json.Marshal([]string{})
	}
	return json.Marshal(s)
}

// JSONMap is an opaque string map stored as JSON in the database.
type JSONMap map[string]string

// Scan implements sql.Scanner interface
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return errors.New("failed to unmarshal JSON value")
	}
}

// Value implements driver.Valuer interface
func (m JSONMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(m)
}
