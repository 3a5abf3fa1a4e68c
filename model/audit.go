package model

import "time"

type AuditEvent struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement"`
	AccountID *uint             `gorm:"index"`                  // nil when the username could not be resolved
	Username  string            `gorm:"size:64;not null;index"` // snapshot of the submitted username
	EventType string            `gorm:"size:64;index"`          // LOGIN_SUCCESS, LOGIN_FAIL...
	Success   bool              `gorm:"not null"`
	Metadata  map[string]string `gorm:"serializer:json;type:text"`
	CreatedAt time.Time         `gorm:"autoCreateTime"`
}

func (AuditEvent) TableName() string {
	return "audit"
}
