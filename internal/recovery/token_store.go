package recovery

import (
	"context"
	"time"

	"github.com/khanghh/kguard/model"
)

// TokenStore persists the outstanding reset token of each account.
type TokenStore interface {
	// Save stores the token, replacing any earlier token of the account.
	Save(ctx context.Context, token *model.PasswordResetToken) error
	// Get returns ErrTokenNotFound when the account has no token.
	Get(ctx context.Context, accountID uint) (*model.PasswordResetToken, error)
	// Consume removes the token if it still matches and has not expired.
	// Exactly one of several concurrent callers gets a nil error.
	Consume(ctx context.Context, accountID uint, token string, now time.Time) error
}
