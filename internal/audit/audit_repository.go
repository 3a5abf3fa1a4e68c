package audit

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/kguard/model"
	"gorm.io/gorm"
)

const metadataEventType = "event_type"

type Filter struct {
	Username string
	Type     EventType
	Limit    int
}

type AuditEventRepository interface {
	RecordEvent(ctx context.Context, event *model.AuditEvent) error
	Find(ctx context.Context, filter Filter) ([]model.AuditEvent, error)
}

// auditEventRepository writes to the audit table. Deployments that predate
// the event_type column are detected on the first failing insert, after
// which the type is kept in the metadata instead.
type auditEventRepository struct {
	db     *gorm.DB
	legacy atomic.Bool
}

func isMissingEventTypeColumn(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1054 && strings.Contains(mysqlErr.Message, metadataEventType)
	}
	msg := err.Error()
	return strings.Contains(msg, "no column named "+metadataEventType) ||
		strings.Contains(msg, "no such column: "+metadataEventType)
}

func (r *auditEventRepository) RecordEvent(ctx context.Context, event *model.AuditEvent) error {
	if r.legacy.Load() {
		return r.recordLegacy(ctx, event)
	}
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil && isMissingEventTypeColumn(err) {
		r.legacy.Store(true)
		return r.recordLegacy(ctx, event)
	}
	return err
}

func (r *auditEventRepository) recordLegacy(ctx context.Context, event *model.AuditEvent) error {
	metadata := make(map[string]string, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		metadata[k] = v
	}
	metadata[metadataEventType] = event.EventType
	legacy := *event
	legacy.Metadata = metadata
	if err := r.db.WithContext(ctx).Omit("EventType").Create(&legacy).Error; err != nil {
		return err
	}
	event.ID = legacy.ID
	return nil
}

func (r *auditEventRepository) Find(ctx context.Context, filter Filter) ([]model.AuditEvent, error) {
	events, err := r.find(ctx, filter)
	if err != nil && !r.legacy.Load() && isMissingEventTypeColumn(err) {
		r.legacy.Store(true)
		events, err = r.find(ctx, filter)
	}
	return events, err
}

func (r *auditEventRepository) find(ctx context.Context, filter Filter) ([]model.AuditEvent, error) {
	legacy := r.legacy.Load()
	tx := r.db.WithContext(ctx).Model(&model.AuditEvent{}).Order("id desc")
	if filter.Username != "" {
		tx = tx.Where("username = ?", strings.ToLower(filter.Username))
	}
	if filter.Type != "" && !legacy {
		tx = tx.Where("event_type = ?", string(filter.Type))
	}
	// legacy rows are filtered by type after loading
	if filter.Limit > 0 && (filter.Type == "" || !legacy) {
		tx = tx.Limit(filter.Limit)
	}

	var events []model.AuditEvent
	if err := tx.Find(&events).Error; err != nil {
		return nil, err
	}

	result := events[:0]
	for _, ev := range events {
		if ev.EventType == "" && ev.Metadata != nil {
			ev.EventType = ev.Metadata[metadataEventType]
		}
		if filter.Type != "" && ev.EventType != string(filter.Type) {
			continue
		}
		result = append(result, ev)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func NewAuditEventRepository(db *gorm.DB) AuditEventRepository {
	return &auditEventRepository{db: db}
}
