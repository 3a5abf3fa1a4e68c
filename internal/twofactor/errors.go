package twofactor

import "errors"

var (
	ErrInvalidTicket      = errors.New("invalid or expired ticket")
	ErrTicketConsumed     = errors.New("ticket already used")
	ErrTOTPNotEnrolled    = errors.New("TOTP not enrolled")
	ErrTOTPAlreadyEnabled = errors.New("TOTP already enabled")
	ErrTOTPVerifyFailed   = errors.New("TOTP verification failed")
	ErrBackupCodeNotFound = errors.New("backup code not found")
)
