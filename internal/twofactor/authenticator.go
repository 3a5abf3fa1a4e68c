package twofactor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/store"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type Method string

const (
	MethodNone       Method = ""
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

type acceptedStep struct {
	Step int64 `json:"step" redis:"step"`
}

// Enrollment is a freshly generated TOTP key that is not active until
// confirmed with a code.
type Enrollment struct {
	Secret string
	URL    string
}

// Authenticator verifies second factor codes and manages TOTP enrollment
// and backup codes of accounts.
type Authenticator struct {
	repo      accounts.AccountRepository
	masterKey string
	issuer    string
	steps     store.Store[acceptedStep]
	now       func() time.Time
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

func WithIssuer(issuer string) Option {
	return func(a *Authenticator) {
		if issuer != "" {
			a.issuer = issuer
		}
	}
}

// WithReplayStore rejects a TOTP code whose time step was already accepted
// for the same account.
func WithReplayStore(storage store.Storage) Option {
	return func(a *Authenticator) {
		a.steps = store.New[acceptedStep](storage, params.TOTPStepKeyPrefix)
	}
}

func NewAuthenticator(repo accounts.AccountRepository, masterKey string, opts ...Option) *Authenticator {
	a := &Authenticator{
		repo:      repo,
		masterKey: masterKey,
		issuer:    params.TOTPIssuer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verify tries the TOTP code first and falls back to the backup codes.
func (a *Authenticator) Verify(ctx context.Context, account *model.Account, code string) (Method, error) {
	if !account.TOTPEnabled {
		return MethodNone, ErrTOTPNotEnrolled
	}
	ok, err := a.VerifyTOTPCode(ctx, account, code)
	if err != nil {
		return MethodNone, err
	}
	if ok {
		return MethodTOTP, nil
	}
	ok, err = a.VerifyBackupCode(ctx, account.ID, code)
	if err != nil {
		return MethodNone, err
	}
	if ok {
		return MethodBackupCode, nil
	}
	return MethodNone, nil
}

func (a *Authenticator) VerifyTOTPCode(ctx context.Context, account *model.Account, code string) (bool, error) {
	now := a.now()
	if !VerifyTOTP(account.TOTPSecret, code, now) {
		return false, nil
	}
	if a.steps == nil {
		return true, nil
	}
	step, ok := matchStep(account.TOTPSecret, code, now)
	if !ok {
		return false, nil
	}
	key := strconv.FormatUint(uint64(account.ID), 10)
	ttl := time.Duration(2*params.TOTPSkew+1) * params.TOTPPeriod * time.Second
	// steps only move forward, a code for the same or an older step is a replay
	return a.steps.SetIf(ctx, key, ttl, func(last *acceptedStep, exists bool) bool {
		if exists && step <= last.Step {
			return false
		}
		last.Step = step
		return true
	})
}

// VerifyBackupCode consumes a matching backup code. A code can succeed only
// once, the removal is a compare-and-set on the account row.
func (a *Authenticator) VerifyBackupCode(ctx context.Context, accountID uint, code string) (bool, error) {
	if canonicalBackupCode(code) == "" {
		return false, nil
	}
	digest := backupCodeDigest(a.masterKey, code)
	_, err := accounts.Mutate(ctx, a.repo, accountID, func(account *model.Account) ([]string, error) {
		idx := indexOfDigest(account.BackupCodes, digest)
		if idx < 0 {
			return nil, ErrBackupCodeNotFound
		}
		remaining := make([]string, 0, len(account.BackupCodes)-1)
		remaining = append(remaining, account.BackupCodes[:idx]...)
		remaining = append(remaining, account.BackupCodes[idx+1:]...)
		account.BackupCodes = remaining
		return []string{"backup_codes"}, nil
	})
	if errors.Is(err, ErrBackupCodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BeginEnrollment generates a new TOTP secret for the account. Nothing is
// stored until Enroll confirms it.
func (a *Authenticator) BeginEnrollment(account *model.Account) (*Enrollment, error) {
	if account.TOTPEnabled {
		return nil, ErrTOTPAlreadyEnabled
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      a.issuer,
		AccountName: account.Username,
		Period:      params.TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Enroll activates TOTP once the user proves possession of the secret and
// returns the plaintext backup codes. Only their digests are stored.
func (a *Authenticator) Enroll(ctx context.Context, accountID uint, secret string, code string) ([]string, error) {
	if !VerifyTOTP(secret, code, a.now()) {
		return nil, ErrTOTPVerifyFailed
	}
	codes, err := generateBackupCodes(params.BackupCodeCount, params.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	_, err = accounts.Mutate(ctx, a.repo, accountID, func(account *model.Account) ([]string, error) {
		if account.TOTPEnabled {
			return nil, ErrTOTPAlreadyEnabled
		}
		account.TOTPEnabled = true
		account.TOTPSecret = secret
		account.BackupCodes = digestBackupCodes(a.masterKey, codes)
		account.TwoFAFailedAttempts = 0
		account.TwoFALockedUntil = nil
		return []string{"totp_enabled", "totp_secret", "backup_codes", "twofa_failed_attempts", "twofa_locked_until"}, nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (a *Authenticator) Disable(ctx context.Context, accountID uint) error {
	_, err := accounts.Mutate(ctx, a.repo, accountID, func(account *model.Account) ([]string, error) {
		if !account.TOTPEnabled {
			return nil, ErrTOTPNotEnrolled
		}
		account.TOTPEnabled = false
		account.TOTPSecret = ""
		account.BackupCodes = nil
		account.TwoFAFailedAttempts = 0
		account.TwoFALockedUntil = nil
		return []string{"totp_enabled", "totp_secret", "backup_codes", "twofa_failed_attempts", "twofa_locked_until"}, nil
	})
	return err
}

// RegenerateBackupCodes replaces every backup code of the account.
func (a *Authenticator) RegenerateBackupCodes(ctx context.Context, accountID uint) ([]string, error) {
	codes, err := generateBackupCodes(params.BackupCodeCount, params.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	_, err = accounts.Mutate(ctx, a.repo, accountID, func(account *model.Account) ([]string, error) {
		if !account.TOTPEnabled {
			return nil, ErrTOTPNotEnrolled
		}
		account.BackupCodes = digestBackupCodes(a.masterKey, codes)
		return []string{"backup_codes"}, nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
