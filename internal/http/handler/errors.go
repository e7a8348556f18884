package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/PowerLink/internal/app/service"
	"go.uber.org/zap"
)

// writeError maps service errors to HTTP responses. Unclassified errors are
// logged and answered with a generic 500.
func writeError(c *fiber.Ctx, log *zap.Logger, err error, msg string, fields ...zap.Field) error {
	status, message := fiber.StatusInternalServerError, "internal server error"

	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		status, message = fiber.StatusBadRequest, verr.Error()
	case errors.Is(err, service.ErrNotFound):
		status, message = fiber.StatusNotFound, "url not found"
	case errors.Is(err, service.ErrForbidden):
		status, message = fiber.StatusForbidden, "not authorized to access this url"
	case errors.Is(err, service.ErrAlreadyOwned):
		status, message = fiber.StatusBadRequest, "url already belongs to a user"
	case errors.Is(err, service.ErrDuplicateCode):
		status, message = fiber.StatusConflict, "custom alias already taken"
	case errors.Is(err, service.ErrExpired):
		status, message = fiber.StatusGone, "this link has expired"
	default:
		log.Error(msg, append(fields, zap.Error(err))...)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
