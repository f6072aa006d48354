package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"tournament-registration/models"
	"tournament-registration/services"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInsufficientBalance):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrAlreadyRegistered),
		errors.Is(err, models.ErrSlotsFull),
		errors.Is(err, models.ErrDuplicateRequest),
		errors.Is(err, models.ErrAlreadyReviewed):
		return fiber.StatusConflict
	case errors.Is(err, services.ErrFlowClosed):
		return fiber.StatusGone
	case errors.Is(err, models.ErrPrerequisiteNotMet):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, models.ErrUploadFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, models.ErrRemoteUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	body := fiber.Map{"error": err.Error()}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	var pe *services.PrerequisiteError
	if errors.As(err, &pe) {
		body["failures"] = pe.Result.Failures()
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		if status == fiber.StatusInternalServerError {
			body["error"] = "internal error"
		}
	}
	return c.Status(status).JSON(body)
}
