package models

import "time"

// SigningKey is a persisted RSA key pair. The key id doubles as the primary
// key and carries the purpose namespace (token_<client>, openid_idtoken,
// resource_<server>), so one row exists per signing context.
type SigningKey struct {
	KID           string `gorm:"column:kid;primaryKey"`
	PrivateKeyPEM string `gorm:"not null"`
	PublicKeyPEM  string `gorm:"not null"`
	CreatedAt     time.Time
}

// TableName overrides the table name used by SigningKey to `signing_keys`
func (SigningKey) TableName() string {
	return "signing_keys"
}
