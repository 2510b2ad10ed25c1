package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
)

var errDisconnected = errors.New("disconnected")

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // bad_request, not_found, unavailable, timeout
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusBadRequest, "bad_request", msg)
}

func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusNotFound, "not_found", msg)
}

func errUnavailable(c *fiber.Ctx, msg string) error {
	return newError(c, fiber.StatusServiceUnavailable, "unavailable", msg)
}

// errStore reports a failed listings read. The cause is logged, never
// returned to the client.
func errStore(c *fiber.Ctx, op string, err error) error {
	LoggerFromCtx(c.UserContext()).Error(op+" failed", "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(c, fiber.StatusGatewayTimeout, "timeout", "listings store did not answer in time")
	}
	return errUnavailable(c, "listings are temporarily unavailable")
}
