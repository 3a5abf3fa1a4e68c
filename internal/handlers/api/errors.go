package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kguard/internal/auth"
	"github.com/khanghh/kguard/internal/password"
)

const (
	ReasonInvalidRequest    = "invalid_request"
	ReasonInvalidCredential = "invalid_credential"
	ReasonAccountLocked     = "account_locked"
	ReasonTwoFactorLocked   = "twofa_locked"
	ReasonAccountInactive   = "account_inactive"
	ReasonInvalidCode       = "invalid_code"
	ReasonInvalidTicket     = "invalid_ticket"
	ReasonPolicyViolation   = "policy_violation"
	ReasonInvalidToken      = "invalid_or_expired_token"
	ReasonInternal          = "internal_error"
)

// errorInfo maps a service error to its HTTP status and a user safe body.
func errorInfo(err error) (int, *APIErrorInfo) {
	var (
		locked    *auth.AccountLockedError
		tfaLocked *auth.TwoFactorLockedError
		violation *password.PolicyViolation
	)
	switch {
	case errors.As(err, &locked):
		return fiber.StatusLocked, &APIErrorInfo{
			Message:           err.Error(),
			Reason:            ReasonAccountLocked,
			RetryAfterSeconds: auth.RetryAfterSeconds(locked.Remaining),
		}
	case errors.As(err, &tfaLocked):
		return fiber.StatusLocked, &APIErrorInfo{
			Message:           err.Error(),
			Reason:            ReasonTwoFactorLocked,
			RetryAfterSeconds: auth.RetryAfterSeconds(tfaLocked.Remaining),
		}
	case errors.As(err, &violation):
		return fiber.StatusUnprocessableEntity, &APIErrorInfo{Message: violation.Error(), Reason: ReasonPolicyViolation}
	case errors.Is(err, auth.ErrInvalidCredential):
		return fiber.StatusUnauthorized, &APIErrorInfo{Message: err.Error(), Reason: ReasonInvalidCredential}
	case errors.Is(err, auth.ErrTwoFactorFailed):
		return fiber.StatusUnauthorized, &APIErrorInfo{Message: err.Error(), Reason: ReasonInvalidCode}
	case errors.Is(err, auth.ErrInvalidTicket):
		return fiber.StatusUnauthorized, &APIErrorInfo{Message: err.Error(), Reason: ReasonInvalidTicket}
	case errors.Is(err, auth.ErrAccountInactive):
		return fiber.StatusForbidden, &APIErrorInfo{Message: err.Error(), Reason: ReasonAccountInactive}
	case errors.Is(err, auth.ErrInvalidOrExpired):
		return fiber.StatusBadRequest, &APIErrorInfo{Message: err.Error(), Reason: ReasonInvalidToken}
	}
	return fiber.StatusInternalServerError, &APIErrorInfo{Message: "Internal server error", Reason: ReasonInternal}
}

func sendError(ctx *fiber.Ctx, err error) error {
	status, info := errorInfo(err)
	info.Code = status
	if status == fiber.StatusInternalServerError {
		slog.Error("Request failed", "path", ctx.Path(), "error", err)
	}
	if info.RetryAfterSeconds > 0 {
		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(info.RetryAfterSeconds))
	}
	return ctx.Status(status).JSON(APIResponse{APIVersion: APIVersion, Error: info})
}

func sendBadRequest(ctx *fiber.Ctx, message string) error {
	resp := NewErrorResponse(fiber.StatusBadRequest, message)
	resp.Error.Reason = ReasonInvalidRequest
	return ctx.Status(fiber.StatusBadRequest).JSON(resp)
}
