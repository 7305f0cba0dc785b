package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/jemaat/internal/flow"
	"github.com/example/jemaat/internal/services"
	"github.com/example/jemaat/internal/session"
)

// mapFlowError translates flow-level failures into HTTP errors. Everything
// here is recoverable: the kiosk shows the message and the user retries from
// an interactable state.
func mapFlowError(err error) error {
	var validationErr *flow.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.NewError(fiber.StatusUnprocessableEntity, validationErr.Error())
	}

	var duplicateErr *flow.DuplicateError
	if errors.As(err, &duplicateErr) {
		return fiber.NewError(fiber.StatusConflict, duplicateErr.Error())
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "session not found")
	case errors.Is(err, flow.ErrSessionClosed):
		return fiber.NewError(fiber.StatusGone, "session is closed")
	case errors.Is(err, flow.ErrPhoneTooShort):
		return fiber.NewError(fiber.StatusBadRequest, "phone number needs at least 10 digits")
	case errors.Is(err, flow.ErrResendCooldown):
		return fiber.NewError(fiber.StatusTooManyRequests, "resend not yet available")
	case errors.Is(err, flow.ErrOtpBusy):
		return fiber.NewError(fiber.StatusConflict, "a request is already in flight")
	case errors.Is(err, flow.ErrCodeIncorrect):
		return fiber.NewError(fiber.StatusBadRequest, "incorrect verification code")
	case errors.Is(err, flow.ErrAlreadyVerified):
		return fiber.NewError(fiber.StatusConflict, "phone already verified")
	case errors.Is(err, flow.ErrAlreadyCheckedIn):
		return fiber.NewError(fiber.StatusConflict, "already checked in")
	case errors.Is(err, flow.ErrOtpNotActive):
		return fiber.NewError(fiber.StatusBadRequest, "request a verification code first")
	case errors.Is(err, flow.ErrNotVerified):
		return fiber.NewError(fiber.StatusForbidden, "verify the phone number first")
	case errors.Is(err, flow.ErrNoCurrentMember):
		return fiber.NewError(fiber.StatusBadRequest, "no member identity available for self mode")
	case errors.Is(err, flow.ErrNotInSearchMode):
		return fiber.NewError(fiber.StatusBadRequest, "selector is not in search mode")
	case errors.Is(err, services.ErrDirectoryUnavailable):
		return fiber.NewError(fiber.StatusBadGateway, "member directory unavailable, please retry")
	}

	return err
}
