package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/khanghh/kguard/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type dbTokenStore struct {
	db *gorm.DB
}

func (s *dbTokenStore) Save(ctx context.Context, token *model.PasswordResetToken) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token", "issued_at", "expires_at"}),
		}).
		Create(token).Error
}

func (s *dbTokenStore) Get(ctx context.Context, accountID uint) (*model.PasswordResetToken, error) {
	var token model.PasswordResetToken
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Consume is a single conditional delete; the row count tells which caller
// consumed the token.
func (s *dbTokenStore) Consume(ctx context.Context, accountID uint, token string, now time.Time) error {
	ret := s.db.WithContext(ctx).
		Where("account_id = ? AND token = ? AND expires_at > ?", accountID, token, now).
		Delete(&model.PasswordResetToken{})
	if ret.Error != nil {
		return ret.Error
	}
	if ret.RowsAffected == 0 {
		return ErrInvalidOrExpired
	}
	return nil
}

func NewDBTokenStore(db *gorm.DB) TokenStore {
	return &dbTokenStore{db: db}
}
