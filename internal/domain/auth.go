package domain

import "time"

// Account is an authentication identity. Its ID is the auth UID referenced by
// User.AuthUID.
type Account struct {
	ID           string     `json:"id"             gorm:"type:varchar(36);primaryKey"`
	Email        string     `json:"email"          gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string     `json:"-"              gorm:"type:text;not null"`
	LastSignInAt *time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for Account.
func (Account) TableName() string { return "auth_accounts" }

// SessionRecord tracks an issued session token (by its JWT ID) so it can be
// revoked on sign-out and purged once expired.
type SessionRecord struct {
	ID        string     `gorm:"type:varchar(36);primaryKey"`
	AccountID string     `gorm:"type:varchar(36);not null;index"`
	ExpiresAt time.Time  `gorm:"not null;index"`
	RevokedAt *time.Time `gorm:"index"`
	CreatedAt time.Time
}

// TableName returns the database table name for SessionRecord.
func (SessionRecord) TableName() string { return "auth_sessions" }
