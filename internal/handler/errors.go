package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/design-copilot/internal/port"
)

// statusFor maps the error taxonomy to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrInvalidInput),
		errors.Is(err, port.ErrEmptyInput),
		errors.Is(err, port.ErrOwnerRequired),
		errors.Is(err, port.ErrUnsupportedFileType):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, port.ErrDocumentNotFound),
		errors.Is(err, port.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrOrdinalConflict):
		return fiber.StatusConflict
	case errors.Is(err, port.ErrProviderRateLimited):
		return fiber.StatusTooManyRequests
	case errors.Is(err, port.ErrConfiguration):
		return fiber.StatusInternalServerError
	case errors.Is(err, port.ErrProviderUnavailable),
		errors.Is(err, port.ErrProviderAuth),
		errors.Is(err, port.ErrEmptyCompletion),
		errors.Is(err, port.ErrIngestionFailed):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// upstreamErrors are reported by their taxonomy text only; the wrapped detail can carry
// the provider's response body.
var upstreamErrors = []error{
	port.ErrProviderAuth,
	port.ErrProviderRateLimited,
	port.ErrEmptyCompletion,
	port.ErrProviderUnavailable,
	port.ErrIngestionFailed,
}

// errorBody builds the status and JSON body for err. Internal and upstream failures are
// logged and masked.
func errorBody(c fiber.Ctx, err error) (int, fiber.Map) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == fiber.StatusInternalServerError:
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "internal error"
	case status == fiber.StatusGatewayTimeout:
		slog.Warn("request timed out", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "upstream timeout"
	default:
		for _, sentinel := range upstreamErrors {
			if errors.Is(err, sentinel) {
				slog.Warn("upstream failure", "method", c.Method(), "path", c.Path(), "error", err)
				msg = sentinel.Error()
				break
			}
		}
	}
	return status, fiber.Map{"error": msg}
}

func sendError(c fiber.Ctx, err error) error {
	status, body := errorBody(c, err)
	return c.Status(status).JSON(body)
}

func unauthorized(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
}
