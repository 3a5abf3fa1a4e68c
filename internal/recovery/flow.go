package recovery

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/common"
	"github.com/khanghh/kguard/internal/metrics"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
)

// Notifier delivers the reset code to the account owner.
type Notifier interface {
	SendPasswordResetCode(ctx context.Context, account *model.Account, code string, expiresAt time.Time) error
}

type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

type Hasher interface {
	Hash(plaintext string) (string, error)
	CurrentScheme() password.Scheme
}

// Issued describes a reset token that was handed to the notifier.
type Issued struct {
	AccountID uint
	Token     string
	ExpiresAt time.Time
}

// Flow issues and redeems one time password reset codes.
type Flow struct {
	repo     accounts.AccountRepository
	tokens   TokenStore
	hasher   Hasher
	policy   password.Policy
	notifier Notifier
	auditor  Auditor
	ttl      time.Duration
	now      func() time.Time
}

type Config struct {
	Policy password.Policy
	TTL    time.Duration
	Now    func() time.Time
}

func generateToken(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Request issues a new reset code for the account, replacing any earlier
// one. Unknown and inactive accounts get ErrRequestRejected.
func (f *Flow) Request(ctx context.Context, username string) (*Issued, error) {
	account, err := f.repo.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		metrics.PasswordResetsTotal.WithLabelValues("request", "rejected").Inc()
		f.auditor.Record(ctx, audit.Event{
			Type:     audit.EventPasswordResetRequest,
			Username: username,
			Metadata: map[string]any{"reason": audit.ReasonUserNotFound},
		})
		return nil, ErrRequestRejected
	}
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		metrics.PasswordResetsTotal.WithLabelValues("request", "rejected").Inc()
		f.auditor.Record(ctx, audit.Event{
			Type:      audit.EventPasswordResetRequest,
			AccountID: account.ID,
			Username:  account.Username,
			Metadata:  map[string]any{"reason": audit.ReasonAccountInactive},
		})
		return nil, ErrRequestRejected
	}

	code, err := generateToken(params.ResetTokenLength)
	if err != nil {
		return nil, err
	}
	now := f.now()
	token := &model.PasswordResetToken{
		AccountID: account.ID,
		Token:     code,
		IssuedAt:  now,
		ExpiresAt: now.Add(f.ttl),
	}
	if err := f.tokens.Save(ctx, token); err != nil {
		return nil, err
	}

	if err := f.notifier.SendPasswordResetCode(ctx, account, code, token.ExpiresAt); err != nil {
		metrics.NotificationFailuresTotal.WithLabelValues("password-reset-otp").Inc()
		slog.Error("Failed to deliver password reset code", "username", account.Username, "error", err)
	}

	metrics.PasswordResetsTotal.WithLabelValues("request", "issued").Inc()
	f.auditor.Record(ctx, audit.Event{
		Type:      audit.EventPasswordResetRequest,
		AccountID: account.ID,
		Username:  account.Username,
		Success:   true,
		Metadata:  map[string]any{"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339)},
	})
	return &Issued{AccountID: account.ID, Token: code, ExpiresAt: token.ExpiresAt}, nil
}

func (f *Flow) rejectRedeem(ctx context.Context, account *model.Account, username string, reason string, err error) error {
	ev := audit.Event{
		Type:     audit.EventPasswordReset,
		Username: username,
		Metadata: map[string]any{"reason": reason},
	}
	if account != nil {
		ev.AccountID = account.ID
		ev.Username = account.Username
	}
	metrics.PasswordResetsTotal.WithLabelValues("redeem", reason).Inc()
	f.auditor.Record(ctx, ev)
	return err
}

// Redeem sets a new password if token is the outstanding, unexpired reset
// code of the account. The code is consumed exactly once. A password that
// fails the policy leaves the code in place so the user can retry.
func (f *Flow) Redeem(ctx context.Context, username string, token string, newPassword string) error {
	token = strings.TrimSpace(token)
	account, err := f.repo.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return f.rejectRedeem(ctx, nil, username, audit.ReasonInvalidToken, ErrInvalidOrExpired)
	}
	if err != nil {
		return err
	}
	if !account.IsActive {
		return f.rejectRedeem(ctx, account, username, audit.ReasonAccountInactive, ErrInvalidOrExpired)
	}

	now := f.now()
	current, err := f.tokens.Get(ctx, account.ID)
	if errors.Is(err, ErrTokenNotFound) {
		return f.rejectRedeem(ctx, account, username, audit.ReasonInvalidToken, ErrInvalidOrExpired)
	}
	if err != nil {
		return err
	}
	if !common.SecureCompare(current.Token, token) || current.IsExpired(now) {
		return f.rejectRedeem(ctx, account, username, audit.ReasonInvalidToken, ErrInvalidOrExpired)
	}

	if err := f.policy.Validate(newPassword); err != nil {
		return f.rejectRedeem(ctx, account, username, audit.ReasonPolicyViolation, err)
	}
	hash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = f.tokens.Consume(ctx, account.ID, token, now)
	if errors.Is(err, ErrInvalidOrExpired) {
		return f.rejectRedeem(ctx, account, username, audit.ReasonInvalidToken, ErrInvalidOrExpired)
	}
	if err != nil {
		return err
	}

	_, err = accounts.Mutate(ctx, f.repo, account.ID, func(acc *model.Account) ([]string, error) {
		acc.PasswordHash = hash
		acc.HashScheme = string(f.hasher.CurrentScheme())
		acc.MustChangePassword = false
		acc.FirstLogin = false
		acc.FailedAttempts = 0
		acc.LockedUntil = nil
		return []string{"password_hash", "hash_scheme", "must_change_password", "first_login", "failed_attempts", "locked_until"}, nil
	})
	if err != nil {
		return err
	}

	metrics.PasswordResetsTotal.WithLabelValues("redeem", "success").Inc()
	f.auditor.Record(ctx, audit.Event{
		Type:      audit.EventPasswordReset,
		AccountID: account.ID,
		Username:  account.Username,
		Success:   true,
	})
	return nil
}

func NewFlow(repo accounts.AccountRepository, tokens TokenStore, hasher Hasher, notifier Notifier, auditor Auditor, cfg Config) *Flow {
	if cfg.TTL <= 0 {
		cfg.TTL = params.ResetTokenExpiration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy.MinLength == 0 {
		cfg.Policy = password.DefaultPolicy()
	}
	return &Flow{
		repo:     repo,
		tokens:   tokens,
		hasher:   hasher,
		policy:   cfg.Policy,
		notifier: notifier,
		auditor:  auditor,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
}
