package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/lockout"
	"github.com/khanghh/kguard/internal/metrics"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/internal/recovery"
	"github.com/khanghh/kguard/internal/twofactor"
	"github.com/khanghh/kguard/model"
)

// Auditor appends events to the audit trail.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// Notifier delivers the credentials of provisioned accounts.
type Notifier interface {
	SendWelcome(ctx context.Context, account *model.Account, tempPassword string) error
}

type Options struct {
	Accounts          accounts.AccountRepository
	Verifier          *password.Verifier
	Policy            password.Policy
	PrimaryGuard      *lockout.Guard
	SecondFactorGuard *lockout.Guard
	TwoFactor         *twofactor.Authenticator
	Tickets           *twofactor.Challenger
	Recovery          *recovery.Flow
	Notifier          Notifier
	Auditor           Auditor
	Now               func() time.Time
}

// Service drives a login through lockout, credential verification, forced
// password change and second factor, and exposes the account operations
// built on the same components.
type Service struct {
	repo         accounts.AccountRepository
	verifier     *password.Verifier
	policy       password.Policy
	primary      *lockout.Guard
	secondFactor *lockout.Guard
	twoFA        *twofactor.Authenticator
	tickets      *twofactor.Challenger
	recovery     *recovery.Flow
	notifier     Notifier
	auditor      Auditor
	dummyHash    string
	now          func() time.Time
}

func (s *Service) record(ctx context.Context, eventType audit.EventType, account *model.Account, username string, success bool, metadata map[string]any) {
	ev := audit.Event{
		Type:     eventType,
		Username: username,
		Success:  success,
		Metadata: metadata,
	}
	if account != nil {
		ev.AccountID = account.ID
		ev.Username = account.Username
	}
	s.auditor.Record(ctx, ev)
}

func (s *Service) loginFailed(ctx context.Context, account *model.Account, username string, reason string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["reason"] = reason
	metrics.LoginAttemptsTotal.WithLabelValues("password", reason).Inc()
	s.record(ctx, audit.EventLoginFail, account, username, false, metadata)
}

func (s *Service) issueTicket(account *model.Account, purpose twofactor.Purpose, status LoginStatus) (*LoginResult, error) {
	ticket, expiresAt, err := s.tickets.Issue(account.ID, purpose)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Status:          status,
		Account:         account,
		Ticket:          ticket,
		TicketExpiresAt: expiresAt,
	}, nil
}

// Authenticate runs the password step of a login. A nil error means either a
// completed login or a pending step described by the result.
func (s *Service) Authenticate(ctx context.Context, username string, plaintext string) (*LoginResult, error) {
	username = accounts.Normalize(username)
	account, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		// same cost as a real verification
		s.verifier.Verify(plaintext, s.dummyHash)
		s.loginFailed(ctx, nil, username, audit.ReasonUserNotFound, nil)
		return nil, ErrInvalidCredential
	}
	if err != nil {
		s.loginFailed(ctx, nil, username, audit.ReasonStorageFailure, nil)
		return nil, storageError(err)
	}

	now := s.now()
	if state := s.primary.Check(account, now); state.Locked {
		s.loginFailed(ctx, account, username, audit.ReasonAccountLocked, map[string]any{
			"wait_seconds": RetryAfterSeconds(state.Remaining),
		})
		return nil, &AccountLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
	}
	if !account.IsActive {
		s.loginFailed(ctx, account, username, audit.ReasonAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	outcome := s.verifier.Verify(plaintext, account.PasswordHash)
	if !outcome.Valid {
		state, err := s.primary.RecordFailure(ctx, account.ID)
		if err != nil {
			s.loginFailed(ctx, account, username, audit.ReasonInvalidPassword, map[string]any{"counter_error": err.Error()})
			return nil, storageError(err)
		}
		metadata := map[string]any{"attempts": state.Attempts}
		if state.LockedNow {
			metrics.LockoutsTotal.WithLabelValues(s.primary.Name()).Inc()
			metadata["account_locked_now"] = true
			metadata["wait_seconds"] = RetryAfterSeconds(state.Remaining)
			s.loginFailed(ctx, account, username, audit.ReasonInvalidPassword, metadata)
			return nil, &AccountLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
		}
		s.loginFailed(ctx, account, username, audit.ReasonInvalidPassword, metadata)
		return nil, ErrInvalidCredential
	}
	if outcome.RehashNeeded {
		account = s.rehash(ctx, account, plaintext, outcome.Scheme)
	}

	if account.MustChangePassword || (account.FirstLogin && !account.Role.IsPrivileged()) {
		result, err := s.issueTicket(account, twofactor.PurposePasswordChange, StatusPasswordChangeRequired)
		if err != nil {
			return nil, err
		}
		metrics.LoginAttemptsTotal.WithLabelValues("password", "password_change_required").Inc()
		s.record(ctx, audit.EventLoginForcedChange, account, username, true, map[string]any{
			"must_change_password": account.MustChangePassword,
			"first_login":          account.FirstLogin,
		})
		return result, nil
	}
	return s.continueToSecondFactor(ctx, account)
}

// rehash migrates a verified password to the current scheme. Failures are
// logged and never block the login.
func (s *Service) rehash(ctx context.Context, account *model.Account, plaintext string, from password.Scheme) *model.Account {
	hash, err := s.verifier.Hash(plaintext)
	if err != nil {
		metrics.PasswordRehashTotal.WithLabelValues(string(from), "failed").Inc()
		slog.Warn("Failed to rehash password", "username", account.Username, "scheme", from, "error", err)
		return account
	}
	stored := account.PasswordHash
	updated, err := accounts.Mutate(ctx, s.repo, account.ID, func(acc *model.Account) ([]string, error) {
		if acc.PasswordHash != stored {
			return nil, nil
		}
		acc.PasswordHash = hash
		acc.HashScheme = string(s.verifier.CurrentScheme())
		return []string{"password_hash", "hash_scheme"}, nil
	})
	if err != nil {
		metrics.PasswordRehashTotal.WithLabelValues(string(from), "failed").Inc()
		slog.Warn("Failed to persist rehashed password", "username", account.Username, "scheme", from, "error", err)
		return account
	}
	if updated.PasswordHash != hash {
		return updated
	}
	metrics.PasswordRehashTotal.WithLabelValues(string(from), "success").Inc()
	s.record(ctx, audit.EventPasswordRehash, updated, updated.Username, true, map[string]any{
		"from": string(from),
		"to":   string(s.verifier.CurrentScheme()),
	})
	return updated
}

func (s *Service) continueToSecondFactor(ctx context.Context, account *model.Account) (*LoginResult, error) {
	if !account.TOTPEnabled {
		return s.complete(ctx, account)
	}
	now := s.now()
	if state := s.secondFactor.Check(account, now); state.Locked {
		metrics.LoginAttemptsTotal.WithLabelValues("second_factor", audit.ReasonTwoFactorLocked).Inc()
		s.record(ctx, audit.EventLogin2FALocked, account, account.Username, false, map[string]any{
			"reason":       audit.ReasonTwoFactorLocked,
			"wait_seconds": RetryAfterSeconds(state.Remaining),
		})
		return nil, &TwoFactorLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
	}
	result, err := s.issueTicket(account, twofactor.PurposeTwoFactor, StatusTwoFactorRequired)
	if err != nil {
		return nil, err
	}
	metrics.LoginAttemptsTotal.WithLabelValues("password", "two_factor_required").Inc()
	s.record(ctx, audit.EventLogin2FAPrompt, account, account.Username, true, nil)
	return result, nil
}

func (s *Service) complete(ctx context.Context, account *model.Account) (*LoginResult, error) {
	if err := s.primary.RecordSuccess(ctx, account.ID); err != nil {
		return nil, storageError(err)
	}
	now := s.now()
	updated, err := accounts.Mutate(ctx, s.repo, account.ID, func(acc *model.Account) ([]string, error) {
		acc.LastLoginAt = &now
		return []string{"last_login_at"}, nil
	})
	if err != nil {
		return nil, storageError(err)
	}
	metrics.LoginAttemptsTotal.WithLabelValues("login", "success").Inc()
	s.record(ctx, audit.EventLoginSuccess, updated, updated.Username, true, map[string]any{
		"totp_enabled": updated.TOTPEnabled,
	})
	return &LoginResult{Status: StatusSuccess, Account: updated}, nil
}

// loadTicketAccount resolves the account a continuation ticket was issued
// for. When the ticket is expired or already used but still names an
// existing account, that account is returned with ErrInvalidTicket.
func (s *Service) loadTicketAccount(ctx context.Context, ticket string, purpose twofactor.Purpose) (*twofactor.TicketClaims, *model.Account, error) {
	claims, verifyErr := s.tickets.Verify(ctx, ticket, purpose)
	rejected := errors.Is(verifyErr, twofactor.ErrInvalidTicket) || errors.Is(verifyErr, twofactor.ErrTicketConsumed)
	if verifyErr != nil && !rejected {
		return nil, nil, storageError(verifyErr)
	}
	if claims == nil {
		return nil, nil, ErrInvalidTicket
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return nil, nil, ErrInvalidTicket
	}
	account, err := s.repo.GetByID(ctx, accountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, nil, ErrInvalidTicket
	}
	if err != nil {
		return nil, nil, storageError(err)
	}
	if rejected {
		return nil, account, ErrInvalidTicket
	}
	return claims, account, nil
}

func (s *Service) twoFactorFailed(ctx context.Context, account *model.Account, reason string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["reason"] = reason
	metrics.LoginAttemptsTotal.WithLabelValues("second_factor", reason).Inc()
	s.record(ctx, audit.EventLogin2FAFail, account, account.Username, false, metadata)
}

// SubmitTwoFactor checks a TOTP or backup code for a login that passed the
// password step.
func (s *Service) SubmitTwoFactor(ctx context.Context, ticket string, code string) (*LoginResult, error) {
	claims, account, err := s.loadTicketAccount(ctx, ticket, twofactor.PurposeTwoFactor)
	if err != nil {
		if account != nil {
			s.twoFactorFailed(ctx, account, audit.ReasonInvalidToken, nil)
		}
		return nil, err
	}
	if !account.IsActive {
		s.twoFactorFailed(ctx, account, audit.ReasonAccountInactive, nil)
		return nil, ErrAccountInactive
	}
	if !account.TOTPEnabled {
		s.twoFactorFailed(ctx, account, audit.ReasonInvalidToken, map[string]any{"totp_enabled": false})
		return nil, ErrInvalidTicket
	}

	now := s.now()
	if state := s.secondFactor.Check(account, now); state.Locked {
		metrics.LoginAttemptsTotal.WithLabelValues("second_factor", audit.ReasonTwoFactorLocked).Inc()
		s.record(ctx, audit.EventLogin2FALocked, account, account.Username, false, map[string]any{
			"reason":       audit.ReasonTwoFactorLocked,
			"wait_seconds": RetryAfterSeconds(state.Remaining),
		})
		return nil, &TwoFactorLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
	}

	method, err := s.twoFA.Verify(ctx, account, code)
	if err != nil {
		s.twoFactorFailed(ctx, account, audit.ReasonStorageFailure, nil)
		return nil, storageError(err)
	}
	if method == twofactor.MethodNone {
		state, err := s.secondFactor.RecordFailure(ctx, account.ID)
		if err != nil {
			s.twoFactorFailed(ctx, account, audit.ReasonInvalidCode, map[string]any{"counter_error": err.Error()})
			return nil, storageError(err)
		}
		metadata := map[string]any{"attempts": state.Attempts}
		if state.LockedNow {
			metrics.LockoutsTotal.WithLabelValues(s.secondFactor.Name()).Inc()
			metadata["locked"] = true
			metadata["wait_seconds"] = RetryAfterSeconds(state.Remaining)
			s.twoFactorFailed(ctx, account, audit.ReasonInvalidCode, metadata)
			return nil, &TwoFactorLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
		}
		s.twoFactorFailed(ctx, account, audit.ReasonInvalidCode, metadata)
		return nil, ErrTwoFactorFailed
	}

	if err := s.secondFactor.RecordSuccess(ctx, account.ID); err != nil {
		return nil, storageError(err)
	}
	if err := s.tickets.Consume(ctx, claims); err != nil {
		if errors.Is(err, twofactor.ErrTicketConsumed) || errors.Is(err, twofactor.ErrInvalidTicket) {
			s.twoFactorFailed(ctx, account, audit.ReasonInvalidToken, nil)
			return nil, ErrInvalidTicket
		}
		slog.Warn("Failed to consume login ticket", "username", account.Username, "error", err)
	}
	metrics.LoginAttemptsTotal.WithLabelValues("second_factor", "success").Inc()
	s.record(ctx, audit.EventLogin2FASuccess, account, account.Username, true, map[string]any{
		"method": string(method),
	})
	return s.complete(ctx, account)
}

func NewService(opts Options) (*Service, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.MinLength == 0 {
		opts.Policy = password.DefaultPolicy()
	}
	dummy, err := password.GenerateTemporary(16)
	if err != nil {
		return nil, err
	}
	dummyHash, err := opts.Verifier.Hash(dummy)
	if err != nil {
		return nil, err
	}
	return &Service{
		repo:         opts.Accounts,
		verifier:     opts.Verifier,
		policy:       opts.Policy,
		primary:      opts.PrimaryGuard,
		secondFactor: opts.SecondFactorGuard,
		twoFA:        opts.TwoFactor,
		tickets:      opts.Tickets,
		recovery:     opts.Recovery,
		notifier:     opts.Notifier,
		auditor:      opts.Auditor,
		dummyHash:    dummyHash,
		now:          opts.Now,
	}, nil
}
