package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/metrics"
	"github.com/khanghh/kguard/internal/password"
	"github.com/khanghh/kguard/model"
	"github.com/khanghh/kguard/params"
)

type ProvisionRequest struct {
	Username string
	Email    string
	Role     model.Role
	Password string // a temporary password is generated when empty
	Actor    string // who provisioned the account, for the audit trail
}

// ProvisionAccount creates an account that must change its password on
// first login. Privileged roles are exempt from the forced change. The
// generated temporary password is returned and mailed to the owner; it is
// empty when the request carried a password.
func (s *Service) ProvisionAccount(ctx context.Context, req ProvisionRequest) (uint, string, error) {
	username := accounts.Normalize(req.Username)
	email := accounts.Normalize(req.Email)
	if username == "" || len(username) > 64 {
		return 0, "", ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return 0, "", ErrInvalidEmail
	}
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	if !role.IsValid() {
		return 0, "", ErrInvalidRole
	}

	plaintext := req.Password
	generated := plaintext == ""
	if generated {
		var err error
		if plaintext, err = password.GenerateTemporary(params.TempPasswordLength); err != nil {
			return 0, "", err
		}
	} else if err := s.policy.Validate(plaintext); err != nil {
		return 0, "", err
	}

	existing, err := s.repo.FindConflicting(ctx, username, email)
	if err != nil && !errors.Is(err, accounts.ErrAccountNotFound) {
		return 0, "", storageError(err)
	}
	if existing != nil {
		if existing.Username == username {
			return 0, "", ErrUsernameTaken
		}
		return 0, "", ErrEmailTaken
	}

	hash, err := s.verifier.Hash(plaintext)
	if err != nil {
		return 0, "", err
	}
	account := &model.Account{
		Username:           username,
		Email:              email,
		Role:               role,
		IsActive:           true,
		PasswordHash:       hash,
		HashScheme:         string(s.verifier.CurrentScheme()),
		MustChangePassword: !role.IsPrivileged(),
		FirstLogin:         true,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, accounts.ErrUsernameTaken) || errors.Is(err, accounts.ErrEmailTaken) {
			return 0, "", err
		}
		return 0, "", storageError(err)
	}

	s.record(ctx, audit.EventUserCreate, account, account.Username, true, map[string]any{
		"role":               string(role),
		"created_by":         req.Actor,
		"temp_password_used": generated,
	})

	if !generated {
		return account.ID, "", nil
	}
	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, account, plaintext); err != nil {
			metrics.NotificationFailuresTotal.WithLabelValues("welcome-temp-password").Inc()
			slog.Error("Failed to send welcome mail", "username", account.Username, "error", err)
		}
	}
	return account.ID, plaintext, nil
}

func (s *Service) mutateByUsername(ctx context.Context, username string, fn accounts.Mutation) (*model.Account, error) {
	account, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, storageError(err)
	}
	updated, err := accounts.Mutate(ctx, s.repo, account.ID, fn)
	if err != nil {
		return nil, storageError(err)
	}
	return updated, nil
}

// SetActive enables or disables an account. Disabled accounts cannot log in
// or reset their password.
func (s *Service) SetActive(ctx context.Context, username string, active bool) error {
	account, err := s.mutateByUsername(ctx, username, func(acc *model.Account) ([]string, error) {
		if acc.IsActive == active {
			return nil, nil
		}
		acc.IsActive = active
		return []string{"is_active"}, nil
	})
	if err != nil {
		return err
	}
	eventType := audit.EventAccountDeactivate
	if active {
		eventType = audit.EventAccountActivate
	}
	s.record(ctx, eventType, account, account.Username, true, nil)
	return nil
}

// Unlock clears the password and second factor locks of an account.
func (s *Service) Unlock(ctx context.Context, username string) error {
	account, err := s.mutateByUsername(ctx, username, func(acc *model.Account) ([]string, error) {
		acc.FailedAttempts = 0
		acc.LockedUntil = nil
		acc.TwoFAFailedAttempts = 0
		acc.TwoFALockedUntil = nil
		return []string{"failed_attempts", "locked_until", "twofa_failed_attempts", "twofa_locked_until"}, nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.EventAccountUnlock, account, account.Username, true, nil)
	return nil
}
