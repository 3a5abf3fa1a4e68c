package recovery

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/khanghh/kguard/internal/common"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
)

// tokenRecord is the key/value form of a reset token. Times are unix
// seconds so both the redis hash and the JSON encodings stay flat.
type tokenRecord struct {
	AccountID uint   `json:"accountId" redis:"account_id"`
	Token     string `json:"token"     redis:"token"`
	IssuedAt  int64  `json:"issuedAt"  redis:"issued_at"`
	ExpiresAt int64  `json:"expiresAt" redis:"expires_at"`
}

// kvTokenStore keeps tokens in a store.Storage with native key expiry.
// Consumption is a single compare-and-delete in the backend, so a token
// issued concurrently is never removed in place of the redeemed one.
type kvTokenStore struct {
	tokens store.Store[tokenRecord]
	now    func() time.Time
}

func tokenKey(accountID uint) string {
	return strconv.FormatUint(uint64(accountID), 10)
}

func (s *kvTokenStore) Save(ctx context.Context, token *model.PasswordResetToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	record := tokenRecord{
		AccountID: token.AccountID,
		Token:     token.Token,
		IssuedAt:  token.IssuedAt.Unix(),
		ExpiresAt: token.ExpiresAt.Unix(),
	}
	return s.tokens.Set(ctx, tokenKey(token.AccountID), record, ttl)
}

func (s *kvTokenStore) Get(ctx context.Context, accountID uint) (*model.PasswordResetToken, error) {
	record, err := s.tokens.Get(ctx, tokenKey(accountID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &model.PasswordResetToken{
		AccountID: record.AccountID,
		Token:     record.Token,
		IssuedAt:  time.Unix(record.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(record.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *kvTokenStore) Consume(ctx context.Context, accountID uint, token string, now time.Time) error {
	err := s.tokens.DeleteIf(ctx, tokenKey(accountID), func(record tokenRecord) bool {
		return common.SecureCompare(record.Token, token) && now.Unix() < record.ExpiresAt
	})
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrNotMatched) {
		return ErrInvalidOrExpired
	}
	return err
}

// NewKVTokenStore stores tokens in redis or in process memory depending on
// the storage passed in.
func NewKVTokenStore(storage store.Storage, now func() time.Time) TokenStore {
	if now == nil {
		now = time.Now
	}
	return &kvTokenStore{
		tokens: store.New[tokenRecord](storage, params.ResetTokenKeyPrefix),
		now:    now,
	}
}
