package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kguard/internal/auth"
)

type AuthService interface {
	Authenticate(ctx context.Context, username string, password string) (*auth.LoginResult, error)
	SubmitTwoFactor(ctx context.Context, ticket string, code string) (*auth.LoginResult, error)
	CompletePasswordChange(ctx context.Context, ticket string, newPassword string) (*auth.LoginResult, error)
	ChangePassword(ctx context.Context, username string, current string, newPassword string) error
	RequestPasswordReset(ctx context.Context, username string) error
	RedeemPasswordReset(ctx context.Context, username string, token string, newPassword string) error
}

// AuthHandler exposes the login state machine and the password flows as a
// JSON API.
type AuthHandler struct {
	authService AuthService
}

func (h *AuthHandler) sendLoginResult(ctx *fiber.Ctx, result *auth.LoginResult, err error) error {
	if err != nil {
		return sendError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(newLoginResponse(result)))
}

func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return sendBadRequest(ctx, "Username and password are required")
	}
	result, err := h.authService.Authenticate(ctx.UserContext(), req.Username, req.Password)
	return h.sendLoginResult(ctx, result, err)
}

func (h *AuthHandler) PostLoginTwoFactor(ctx *fiber.Ctx) error {
	var req twoFactorRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if req.Ticket == "" || strings.TrimSpace(req.Code) == "" {
		return sendBadRequest(ctx, "Ticket and code are required")
	}
	result, err := h.authService.SubmitTwoFactor(ctx.UserContext(), req.Ticket, req.Code)
	return h.sendLoginResult(ctx, result, err)
}

func (h *AuthHandler) PostLoginPassword(ctx *fiber.Ctx) error {
	var req passwordChangeTicketRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if req.Ticket == "" || req.NewPassword == "" {
		return sendBadRequest(ctx, "Ticket and new password are required")
	}
	result, err := h.authService.CompletePasswordChange(ctx.UserContext(), req.Ticket, req.NewPassword)
	return h.sendLoginResult(ctx, result, err)
}

// PostPasswordReset answers the same way whether or not the account exists.
func (h *AuthHandler) PostPasswordReset(ctx *fiber.Ctx) error {
	var req resetRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if strings.TrimSpace(req.Username) == "" {
		return sendBadRequest(ctx, "Username is required")
	}
	if err := h.authService.RequestPasswordReset(ctx.UserContext(), req.Username); err != nil {
		return sendError(ctx, err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(NewDataResponse(MessageResponse{
		Message: "If the account exists, a reset code has been sent to its email address.",
	}))
}

func (h *AuthHandler) PostPasswordResetConfirm(ctx *fiber.Ctx) error {
	var req resetConfirmRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if strings.TrimSpace(req.Username) == "" || req.Token == "" || req.NewPassword == "" {
		return sendBadRequest(ctx, "Username, token and new password are required")
	}
	if err := h.authService.RedeemPasswordReset(ctx.UserContext(), req.Username, req.Token, req.NewPassword); err != nil {
		return sendError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(MessageResponse{Message: "Password has been reset."}))
}

func (h *AuthHandler) PostPasswordChange(ctx *fiber.Ctx) error {
	var req changePasswordRequest
	if err := ctx.BodyParser(&req); err != nil {
		return sendBadRequest(ctx, "Malformed request body")
	}
	if strings.TrimSpace(req.Username) == "" || req.CurrentPassword == "" || req.NewPassword == "" {
		return sendBadRequest(ctx, "Username, current password and new password are required")
	}
	if err := h.authService.ChangePassword(ctx.UserContext(), req.Username, req.CurrentPassword, req.NewPassword); err != nil {
		return sendError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(MessageResponse{Message: "Password has been changed."}))
}

// Register mounts the handler routes on router.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/login", h.PostLogin)
	router.Post("/login/2fa", h.PostLoginTwoFactor)
	router.Post("/login/password", h.PostLoginPassword)
	router.Post("/password/reset", h.PostPasswordReset)
	router.Post("/password/reset/confirm", h.PostPasswordResetConfirm)
	router.Post("/password/change", h.PostPasswordChange)
}

func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}
