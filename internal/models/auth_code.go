package models

import "time"

// AuthCode is a single-use authorization code binding a client, a resource
// owner and a granted scope. Codes are removed from storage the moment they
// are looked up, before any validation runs.
type AuthCode struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Code      string `gorm:"uniqueIndex;not null"`
	ClientID  string `gorm:"index;not null"`
	UserID    string `gorm:"not null"`
	Scope     string
	Nonce     string
	IssuedAt  time.Time `gorm:"not null"`
	NotBefore time.Time `gorm:"not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Valid reports whether the code is inside its validity window at now.
// A nil ExpiresAt means the code never expires.
func (a *AuthCode) Valid(now time.Time) bool {
	return validWindow(a.IssuedAt, a.NotBefore, a.ExpiresAt, now)
}

// TableName overrides the table name used by AuthCode to `oauth_auth_codes`
func (AuthCode) TableName() string {
	return "oauth_auth_codes"
}

// validWindow is the shared validity check for codes and tokens:
// strictly after issuance and not-before, strictly before expiry when set.
func validWindow(issuedAt, notBefore time.Time, expiresAt *time.Time, now time.Time) bool {
	if !issuedAt.Before(now) {
		return false
	}
	if !notBefore.Before(now) {
		return false
	}
	if expiresAt != nil && !now.Before(*expiresAt) {
		return false
	}
	return true
}
