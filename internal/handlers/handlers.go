package handlers

import (
	"github.com/gofiber/fiber/v2"

	cvintelErrors "cvintel/internal/errors"
	"cvintel/internal/models"
)

// writeError maps the application error taxonomy onto HTTP statuses and
// the canonical error envelope.
func writeError(c *fiber.Ctx, err error) error {
	appErr, ok := cvintelErrors.AsAppError(err)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error:   "INTERNAL",
			Message: err.Error(),
		})
	}

	status := fiber.StatusInternalServerError
	switch appErr.Type {
	case cvintelErrors.ErrorTypeValidation, cvintelErrors.ErrorTypeNormalization:
		status = fiber.StatusBadRequest
	case cvintelErrors.ErrorTypeNotFound:
		status = fiber.StatusNotFound
	case cvintelErrors.ErrorTypeCancelled:
		status = fiber.StatusConflict
	}

	return c.Status(status).JSON(models.ErrorResponse{
		Error:   appErr.Code,
		Message: appErr.Message,
	})
}
