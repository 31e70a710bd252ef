package serverutils

import (
	"errors"

	"ai-docqa-be/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// StatusFor maps an error to the HTTP status the API reports for it.
func StatusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		return fiber.StatusInternalServerError
	}

	switch ae.Reason {
	case apperr.ReasonUnsupportedFormat:
		return fiber.StatusBadRequest
	case apperr.ReasonRateLimited:
		return fiber.StatusTooManyRequests
	case apperr.ReasonProviderUnavailable:
		return fiber.StatusBadGateway
	}

	switch ae.Kind {
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindRetrievalUnavailable, apperr.KindConcurrentTurnRejected:
		return fiber.StatusConflict
	case apperr.KindGeneration:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler renders err as an ErrorResponse. Internal failures hide their
// cause from the client.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := StatusFor(err)

	message := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		message = ae.Detail()
	}
	if code == fiber.StatusInternalServerError {
		message = "Internal server error"
	}

	return ctx.Status(code).JSON(ErrorResponse(code, message))
}

// ErrorHandlerMiddleware converts errors returned by downstream handlers.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if err := ctx.Next(); err != nil {
			return ErrorHandler(ctx, err)
		}
		return nil
	}
}
