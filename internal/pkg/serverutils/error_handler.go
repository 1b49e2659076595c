package serverutils

import (
	"errors"

	"discussion-companion-be/internal/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the standard
// error envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		return WriteError(ctx, err)
	}
}

func WriteError(ctx *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	var validationErr *ValidationError

	switch {
	case errors.As(err, &fiberErr):
		return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Code, fiberErr.Message))
	case errors.As(err, &validationErr):
		return ctx.Status(fiber.StatusBadRequest).JSON(&Response[map[string]string]{
			Code:    fiber.StatusBadRequest,
			Message: "Validation failed",
			Data:    validationErr.Fields,
		})
	default:
		status := apperror.HTTPStatus(err)
		return ctx.Status(status).JSON(ErrorResponse(status, apperror.UserMessage(err)))
	}
}
