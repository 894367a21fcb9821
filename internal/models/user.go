package models

import "time"

// User is a resource owner. Authentication happens in the companion login
// system; this record carries the identity claims exposed through ID tokens.
type User struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    string `gorm:"uniqueIndex;not null"`
	Username  string `gorm:"uniqueIndex;not null"`
	Email     string
	FullName  string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name used by User to `users`
func (User) TableName() string {
	return "users"
}
