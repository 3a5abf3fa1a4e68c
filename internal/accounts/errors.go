package accounts

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrVersionConflict = errors.New("account was modified concurrently")
	ErrUsernameTaken   = errors.New("username already taken")
	ErrEmailTaken      = errors.New("email already registered")
	ErrInvalidRole     = errors.New("invalid role")
)
