package model

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsPrivileged reports whether the role is exempt from the first-login
// password change.
func (r Role) IsPrivileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Account stores identity and credential state
type Account struct {
	ID                  uint       `gorm:"primarykey"`
	Username            string     `gorm:"uniqueIndex:idx_account_username;size:64;not null"` // always lower case
	Email               string     `gorm:"uniqueIndex:idx_account_email;size:256;not null"`
	Role                Role       `gorm:"size:16;not null;default:user"`
	IsActive            bool       `gorm:"not null;default:true"`
	PasswordHash        string     `gorm:"size:255;not null"`
	HashScheme          string     `gorm:"size:32;not null"`
	MustChangePassword  bool       `gorm:"not null;default:false"`
	FirstLogin          bool       `gorm:"not null;default:false"`
	FailedAttempts      uint       `gorm:"not null;default:0"`
	LockedUntil         *time.Time `gorm:"index"`
	TOTPEnabled         bool       `gorm:"column:totp_enabled;not null;default:false"`
	TOTPSecret          string     `gorm:"column:totp_secret;size:128"`
	BackupCodes         []string   `gorm:"serializer:json;type:text"` // keyed digests, never plaintext
	TwoFAFailedAttempts uint       `gorm:"column:twofa_failed_attempts;not null;default:0"`
	TwoFALockedUntil    *time.Time `gorm:"column:twofa_locked_until"`
	LastLoginAt         *time.Time
	Version             uint `gorm:"not null;default:0"` // bumped on every state change, used for compare-and-set
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Account) TableName() string {
	return "account"
}

const (
	IdxAccountUsername = "idx_account_username"
	IdxAccountEmail    = "idx_account_email"
)

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == 0 {
		a.ID = GenerateID()
	}
	return nil
}
