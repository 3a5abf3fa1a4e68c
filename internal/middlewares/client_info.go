package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kguard/internal/audit"
)

// ClientInfo attaches the caller address and user agent to the request
// context so that audit events carry them.
func ClientInfo() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		info := audit.ClientInfo{
			IP:        ctx.IP(),
			UserAgent: string(ctx.Request().Header.UserAgent()),
		}
		ctx.SetUserContext(audit.WithClientInfo(ctx.UserContext(), info))
		return ctx.Next()
	}
}
