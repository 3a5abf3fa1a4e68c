package recovery

import "errors"

var (
	// ErrRequestRejected is the single answer for unknown or inactive
	// accounts so that reset requests cannot be used to probe usernames.
	ErrRequestRejected  = errors.New("password reset request rejected")
	ErrInvalidOrExpired = errors.New("reset token is invalid or expired")
	ErrTokenNotFound    = errors.New("reset token not found")
)
