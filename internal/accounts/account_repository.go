package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/khanghh/kguard/model"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

type AccountRepository interface {
	WithTx(tx *gorm.DB) AccountRepository
	Create(ctx context.Context, account *model.Account) error
	GetByID(ctx context.Context, id uint) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	FindConflicting(ctx context.Context, username string, email string) (*model.Account, error)
	// UpdateVersioned writes the given columns only if the stored version
	// still equals account.Version. On success account.Version is advanced.
	UpdateVersioned(ctx context.Context, account *model.Account, columns ...string) error
	Ping(ctx context.Context) error
}

type accountRepository struct {
	db *gorm.DB
}

// Normalize returns the canonical form used to store and look up
// usernames and emails.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (r *accountRepository) WithTx(tx *gorm.DB) AccountRepository {
	return NewAccountRepository(tx)
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	account.Username = Normalize(account.Username)
	account.Email = Normalize(account.Email)
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		return translateDuplicate(err)
	}
	return nil
}

// first always reads from the primary, lock state and versions must never
// come from a lagging replica.
func (r *accountRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Clauses(dbresolver.Write).Where(query, args...).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.first(ctx, "username = ?", Normalize(username))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.first(ctx, "email = ?", Normalize(email))
}

func (r *accountRepository) FindConflicting(ctx context.Context, username string, email string) (*model.Account, error) {
	return r.first(ctx, "username = ? OR email = ?", Normalize(username), Normalize(email))
}

func (r *accountRepository) UpdateVersioned(ctx context.Context, account *model.Account, columns ...string) error {
	expected := account.Version
	updated := *account
	updated.Version = expected + 1
	updated.UpdatedAt = time.Now()

	selected := append([]string{"version", "updated_at"}, columns...)
	ret := r.db.WithContext(ctx).
		Model(&updated).
		Where("version = ?", expected).
		Select(selected).
		Updates(&updated)
	if ret.Error != nil {
		return translateDuplicate(ret.Error)
	}
	if ret.RowsAffected == 0 {
		return ErrVersionConflict
	}
	*account = updated
	return nil
}

func (r *accountRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// translateDuplicate maps unique index violations from mysql and sqlite to
// ErrUsernameTaken and ErrEmailTaken.
func translateDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		switch {
		case strings.Contains(mysqlErr.Message, model.IdxAccountUsername):
			return ErrUsernameTaken
		case strings.Contains(mysqlErr.Message, model.IdxAccountEmail):
			return ErrEmailTaken
		}
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "account.username"):
			return ErrUsernameTaken
		case strings.Contains(msg, "account.email"):
			return ErrEmailTaken
		}
	}
	return err
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db}
}
