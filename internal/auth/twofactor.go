package auth

import (
	"context"
	"errors"

	"github.com/khanghh/kguard/internal/accounts"
	"github.com/khanghh/kguard/internal/audit"
	"github.com/khanghh/kguard/internal/twofactor"
	"github.com/khanghh/kguard/model"
)

func twoFactorError(err error) error {
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound),
		errors.Is(err, twofactor.ErrTOTPAlreadyEnabled),
		errors.Is(err, twofactor.ErrTOTPNotEnrolled),
		errors.Is(err, twofactor.ErrTOTPVerifyFailed):
		return err
	}
	return storageError(err)
}

func (s *Service) getAccount(ctx context.Context, accountID uint) (*model.Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		return nil, twoFactorError(err)
	}
	return account, nil
}

// BeginTwoFactorEnrollment returns a new TOTP secret and its provisioning
// URL. 2FA stays disabled until EnableTwoFactor confirms a code.
func (s *Service) BeginTwoFactorEnrollment(ctx context.Context, accountID uint) (*twofactor.Enrollment, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.twoFA.BeginEnrollment(account)
}

// EnableTwoFactor activates TOTP and returns the plaintext backup codes.
// They are shown once.
func (s *Service) EnableTwoFactor(ctx context.Context, accountID uint, secret string, code string) ([]string, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	codes, err := s.twoFA.Enroll(ctx, accountID, secret, code)
	if err != nil {
		s.record(ctx, audit.EventTwoFAEnable, account, account.Username, false, map[string]any{"error": err.Error()})
		return nil, twoFactorError(err)
	}
	s.record(ctx, audit.EventTwoFAEnable, account, account.Username, true, map[string]any{"backup_codes": len(codes)})
	return codes, nil
}

func (s *Service) DisableTwoFactor(ctx context.Context, accountID uint) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.twoFA.Disable(ctx, accountID); err != nil {
		return twoFactorError(err)
	}
	s.record(ctx, audit.EventTwoFADisable, account, account.Username, true, nil)
	return nil
}

// RegenerateBackupCodes invalidates every unused backup code and returns a
// fresh set.
func (s *Service) RegenerateBackupCodes(ctx context.Context, accountID uint) ([]string, error) {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	codes, err := s.twoFA.RegenerateBackupCodes(ctx, accountID)
	if err != nil {
		return nil, twoFactorError(err)
	}
	s.record(ctx, audit.EventBackupCodesRegenerate, account, account.Username, true, map[string]any{"backup_codes": len(codes)})
	return codes, nil
}
