package auth

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/recovery"
)

var (
	ErrInvalidCredential = errors.New("invalid username or password")
	ErrAccountInactive   = errors.New("account is inactive")
	ErrAccountNotFound   = accounts.ErrAccountNotFound
	ErrTwoFactorFailed   = errors.New("invalid verification code")
	ErrInvalidTicket     = errors.New("login session expired, please sign in again")
	ErrInvalidOrExpired  = recovery.ErrInvalidOrExpired
	ErrUsernameTaken     = accounts.ErrUsernameTaken
	ErrEmailTaken        = accounts.ErrEmailTaken
	ErrInvalidRole       = accounts.ErrInvalidRole
	ErrInvalidUsername   = errors.New("username is required")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrStorage           = errors.New("account storage unavailable")
)

// AccountLockedError is returned while the password lock of an account is
// engaged.
type AccountLockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked, try again in %d seconds", RetryAfterSeconds(e.Remaining))
}

// TwoFactorLockedError is returned while second factor attempts are locked.
type TwoFactorLockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *TwoFactorLockedError) Error() string {
	return fmt.Sprintf("too many invalid codes, try again in %d seconds", RetryAfterSeconds(e.Remaining))
}

// RetryAfterSeconds rounds a remaining lock duration up to whole seconds.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
