package handlers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
)

var validate = validator.New()

func errorStatus(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, apperrors.ErrPayoutNotFound),
		errors.Is(err, apperrors.ErrUserNotFound),
		errors.Is(err, apperrors.ErrCampaignNotFound),
		errors.Is(err, apperrors.ErrChainerNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrInvalidState),
		errors.Is(err, apperrors.ErrSweepInProgress):
		return fiber.StatusConflict
	case errors.Is(err, apperrors.ErrValidation),
		errors.Is(err, apperrors.ErrUnsupportedCurrency),
		errors.Is(err, apperrors.ErrInsufficientFunds):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrInvalidTOTP):
		return fiber.StatusUnauthorized
	}
	return fiber.StatusInternalServerError
}

// respondError writes {"error": message}. Text of unexpected 500s is hidden
// from clients; a *fiber.Error keeps its message.
func respondError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	message := err.Error()
	var fiberErr *fiber.Error
	if status == fiber.StatusInternalServerError && !errors.As(err, &fiberErr) {
		message = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// ErrorHandler is the app-wide fallback for errors no handler answered, such
// as unknown routes and recovered panics.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if errorStatus(err) >= fiber.StatusInternalServerError {
			logger.Error("request failed", zap.Error(err), zap.String("path", c.Path()), zap.String("method", c.Method()))
		}
		return respondError(c, err)
	}
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}
