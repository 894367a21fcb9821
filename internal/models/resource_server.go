package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ResourceServer is a registered protected-resource deployment that can
// authenticate to the introspection, revocation and delegation endpoints.
type ResourceServer struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	ServerID   string `gorm:"uniqueIndex;not null"`
	SecretHash string `gorm:"not null"`
	BaseURL    string `gorm:"uniqueIndex;not null"`
	Scope      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GenerateSecret generates a fresh server secret, stores its bcrypt hash on
// the model, and returns the plaintext for the one-time registration response.
func (r *ResourceServer) GenerateSecret() (string, error) {
	secret, err := randomSecret("ors_")
	if err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	r.SecretHash = string(hashed)
	return secret, nil
}

// ValidateSecret validates the given secret against the stored bcrypt hash.
func (r *ResourceServer) ValidateSecret(secret string) bool {
	if r.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(r.SecretHash), []byte(secret)) == nil
}

// TableName overrides the table name used by ResourceServer to `resource_servers`
func (ResourceServer) TableName() string {
	return "resource_servers"
}
