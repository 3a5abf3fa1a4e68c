package auth

import (
	"time"

	"github.com/khanghh/kguard/model"
)

type LoginStatus string

const (
	StatusSuccess                LoginStatus = "success"
	StatusTwoFactorRequired      LoginStatus = "two_factor_required"
	StatusPasswordChangeRequired LoginStatus = "password_change_required"
)

// LoginResult is the outcome of a login step that did not fail. When Status
// is not StatusSuccess the caller continues with Ticket.
type LoginResult struct {
	Status          LoginStatus
	Account         *model.Account
	Ticket          string
	TicketExpiresAt time.Time
}
