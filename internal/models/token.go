package models

import "time"

// Token categories
const (
	CategoryAccess  = "access"
	CategoryRefresh = "refresh"
)

// Token is an issued access or refresh token. Value holds the opaque refresh
// string or the jti of a JWT access token. UserID is empty for tokens minted
// through the client credentials grant. A nil ExpiresAt means the token never
// expires and is exempt from the expiry sweep.
type Token struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Value     string `gorm:"uniqueIndex;not null"`
	Category  string `gorm:"index;not null"`
	ClientID  string `gorm:"index;not null"`
	UserID    string `gorm:"index"`
	Scope     string
	IssuedAt  time.Time `gorm:"not null"`
	NotBefore time.Time `gorm:"not null"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Valid reports whether the token is inside its validity window at now.
func (t *Token) Valid(now time.Time) bool {
	return validWindow(t.IssuedAt, t.NotBefore, t.ExpiresAt, now)
}

// IsAccessToken checks if this is an access token
func (t *Token) IsAccessToken() bool {
	return t.Category == CategoryAccess
}

// IsRefreshToken checks if this is a refresh token
func (t *Token) IsRefreshToken() bool {
	return t.Category == CategoryRefresh
}

// TableName overrides the table name used by Token to `oauth_tokens`
func (Token) TableName() string {
	return "oauth_tokens"
}
