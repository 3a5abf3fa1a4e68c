package auth

import (
	"context"
	"errors"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/metrics"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/internal/recovery"
	"github.com/khanghh/kguard/internal/twofactor"
	"github.com/khanghh/kguard/model"
)

// checkNewPassword applies the policy and rejects reuse of the current
// password.
func (s *Service) checkNewPassword(account *model.Account, newPassword string) error {
	if err := s.policy.Validate(newPassword); err != nil {
		return err
	}
	if s.verifier.Verify(newPassword, account.PasswordHash).Valid {
		return &password.PolicyViolation{Kind: password.SameAsCurrent, MinLength: s.policy.MinLength}
	}
	return nil
}

// setPassword stores a new hash and clears both forced change flags.
func (s *Service) setPassword(ctx context.Context, accountID uint, newPassword string) (*model.Account, error) {
	hash, err := s.verifier.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	scheme := string(s.verifier.CurrentScheme())
	return accounts.Mutate(ctx, s.repo, accountID, func(acc *model.Account) ([]string, error) {
		acc.PasswordHash = hash
		acc.HashScheme = scheme
		acc.MustChangePassword = false
		acc.FirstLogin = false
		return []string{"password_hash", "hash_scheme", "must_change_password", "first_login"}, nil
	})
}

func (s *Service) passwordChangeFailed(ctx context.Context, account *model.Account, username string, reason string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["reason"] = reason
	s.record(ctx, audit.EventPasswordChange, account, username, false, metadata)
}

// CompletePasswordChange finishes a login that was held for a mandatory
// password change and continues with the second factor when enabled.
func (s *Service) CompletePasswordChange(ctx context.Context, ticket string, newPassword string) (*LoginResult, error) {
	claims, account, err := s.loadTicketAccount(ctx, ticket, twofactor.PurposePasswordChange)
	if err != nil {
		if account != nil {
			s.passwordChangeFailed(ctx, account, account.Username, audit.ReasonInvalidToken, map[string]any{"forced": true})
		}
		return nil, err
	}
	if !account.IsActive {
		s.passwordChangeFailed(ctx, account, account.Username, audit.ReasonAccountInactive, map[string]any{"forced": true})
		return nil, ErrAccountInactive
	}
	if err := s.checkNewPassword(account, newPassword); err != nil {
		s.passwordChangeFailed(ctx, account, account.Username, audit.ReasonPolicyViolation, map[string]any{"forced": true})
		return nil, err
	}
	if err := s.tickets.Consume(ctx, claims); err != nil {
		if errors.Is(err, twofactor.ErrTicketConsumed) || errors.Is(err, twofactor.ErrInvalidTicket) {
			s.passwordChangeFailed(ctx, account, account.Username, audit.ReasonInvalidToken, map[string]any{"forced": true})
			return nil, ErrInvalidTicket
		}
		return nil, storageError(err)
	}
	updated, err := s.setPassword(ctx, account.ID, newPassword)
	if err != nil {
		return nil, storageError(err)
	}
	s.record(ctx, audit.EventPasswordChange, updated, updated.Username, true, map[string]any{"forced": true})
	return s.continueToSecondFactor(ctx, updated)
}

// ChangePassword replaces the password of an account after checking the
// current one. Failed checks count toward the primary lockout.
func (s *Service) ChangePassword(ctx context.Context, username string, current string, newPassword string) error {
	username = accounts.Normalize(username)
	account, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		s.verifier.Verify(current, s.dummyHash)
		s.passwordChangeFailed(ctx, nil, username, audit.ReasonUserNotFound, nil)
		return ErrInvalidCredential
	}
	if err != nil {
		return storageError(err)
	}

	now := s.now()
	if state := s.primary.Check(account, now); state.Locked {
		s.passwordChangeFailed(ctx, account, username, audit.ReasonAccountLocked, map[string]any{
			"wait_seconds": RetryAfterSeconds(state.Remaining),
		})
		return &AccountLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
	}
	if !account.IsActive {
		s.passwordChangeFailed(ctx, account, username, audit.ReasonAccountInactive, nil)
		return ErrAccountInactive
	}
	if !s.verifier.Verify(current, account.PasswordHash).Valid {
		state, err := s.primary.RecordFailure(ctx, account.ID)
		if err != nil {
			s.passwordChangeFailed(ctx, account, username, audit.ReasonInvalidPassword, map[string]any{"counter_error": err.Error()})
			return storageError(err)
		}
		metadata := map[string]any{"attempts": state.Attempts}
		if state.LockedNow {
			metrics.LockoutsTotal.WithLabelValues(s.primary.Name()).Inc()
			metadata["account_locked_now"] = true
			s.passwordChangeFailed(ctx, account, username, audit.ReasonInvalidPassword, metadata)
			return &AccountLockedError{Until: now.Add(state.Remaining), Remaining: state.Remaining}
		}
		s.passwordChangeFailed(ctx, account, username, audit.ReasonInvalidPassword, metadata)
		return ErrInvalidCredential
	}
	if err := s.checkNewPassword(account, newPassword); err != nil {
		s.passwordChangeFailed(ctx, account, username, audit.ReasonPolicyViolation, nil)
		return err
	}
	updated, err := s.setPassword(ctx, account.ID, newPassword)
	if err != nil {
		return storageError(err)
	}
	if err := s.primary.RecordSuccess(ctx, account.ID); err != nil {
		return storageError(err)
	}
	s.record(ctx, audit.EventPasswordChange, updated, updated.Username, true, nil)
	return nil
}

// RequestPasswordReset sends a reset code when the account exists and is
// active. The answer is the same either way.
func (s *Service) RequestPasswordReset(ctx context.Context, username string) error {
	_, err := s.recovery.Request(ctx, accounts.Normalize(username))
	if err == nil || errors.Is(err, recovery.ErrRequestRejected) {
		return nil
	}
	return storageError(err)
}

// RedeemPasswordReset sets a new password using an outstanding reset code.
func (s *Service) RedeemPasswordReset(ctx context.Context, username string, token string, newPassword string) error {
	err := s.recovery.Redeem(ctx, accounts.Normalize(username), token, newPassword)
	var violation *password.PolicyViolation
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recovery.ErrInvalidOrExpired), errors.As(err, &violation):
		return err
	default:
		return storageError(err)
	}
}
