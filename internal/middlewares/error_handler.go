package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kguard/internal/handlers/api"
)

// ErrorHandler renders errors that escaped the handlers, such as unknown
// routes or panics, in the API envelope.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	switch code {
	case fiber.StatusMethodNotAllowed:
		code = fiber.StatusNotFound
		message = "Not found"
	case fiber.StatusInternalServerError:
		slog.Error("unhandled error", "path", ctx.Path(), "code", code, "error", err)
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(api.NewErrorResponse(code, message))
}
