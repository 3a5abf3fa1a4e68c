package model

import "time"

// PasswordResetToken is the single outstanding reset request of an account.
// Issuing a new one overwrites the previous row.
type PasswordResetToken struct {
	AccountID uint      `gorm:"primaryKey;autoIncrement:false" json:"accountId"`
	Token     string    `gorm:"size:16;not null"              json:"token"`
	IssuedAt  time.Time `gorm:"not null"                      json:"issuedAt"`
	ExpiresAt time.Time `gorm:"not null;index"                json:"expiresAt"`
}

func (PasswordResetToken) TableName() string {
	return "password_reset_token"
}

func (t *PasswordResetToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
