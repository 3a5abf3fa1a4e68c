package api

import (
	"strconv"
	"time"

	"github.com/khanghh/kguard/internal/auth"
	"github.com/khanghh/kguard/model"
)

const APIVersion = "1.0"

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code              int    `json:"code"`
	Message           string `json:"message"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{APIVersion: APIVersion, Data: data}
}

func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		APIVersion: APIVersion,
		Error:      &APIErrorInfo{Code: code, Message: message},
	}
}

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type twoFactorRequest struct {
	Ticket string `json:"ticket" form:"ticket"`
	Code   string `json:"code" form:"code"`
}

type passwordChangeTicketRequest struct {
	Ticket      string `json:"ticket" form:"ticket"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

type resetRequest struct {
	Username string `json:"username" form:"username"`
}

type resetConfirmRequest struct {
	Username    string `json:"username" form:"username"`
	Token       string `json:"token" form:"token"`
	NewPassword string `json:"newPassword" form:"newPassword"`
}

type changePasswordRequest struct {
	Username        string `json:"username" form:"username"`
	CurrentPassword string `json:"currentPassword" form:"currentPassword"`
	NewPassword     string `json:"newPassword" form:"newPassword"`
}

type AccountInfo struct {
	AccountID        string     `json:"accountId"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
}

type LoginResponse struct {
	Status          string       `json:"status"`
	Ticket          string       `json:"ticket,omitempty"`
	TicketExpiresAt *time.Time   `json:"ticketExpiresAt,omitempty"`
	Account         *AccountInfo `json:"account,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func newAccountInfo(account *model.Account) *AccountInfo {
	return &AccountInfo{
		AccountID:        strconv.FormatUint(uint64(account.ID), 10),
		Username:         account.Username,
		Email:            account.Email,
		Role:             string(account.Role),
		TwoFactorEnabled: account.TOTPEnabled,
		LastLoginAt:      account.LastLoginAt,
	}
}

func newLoginResponse(result *auth.LoginResult) LoginResponse {
	resp := LoginResponse{Status: string(result.Status)}
	if result.Status == auth.StatusSuccess {
		resp.Account = newAccountInfo(result.Account)
		return resp
	}
	expiresAt := result.TicketExpiresAt.UTC()
	resp.Ticket = result.Ticket
	resp.TicketExpiresAt = &expiresAt
	return resp
}
