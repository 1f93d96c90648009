package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader is echoed on every response so a redirect can be traced
// back through a proxy chain.
const RequestIDHeader = "X-Request-ID"

const requestIDLocal = "request_id"

// RequestID tags each request with a correlation ID. Inbound IDs are
// trusted only if they are short enough to be harmless in logs.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(RequestIDHeader)
		if rid == "" || len(rid) > 64 {
			rid = uuid.New().String()
		}
		c.Locals(requestIDLocal, rid)
		c.Set(RequestIDHeader, rid)
		return c.Next()
	}
}

// requestID pulls the correlation ID set by RequestID, if any.
func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals(requestIDLocal).(string); ok {
		return rid
	}
	return ""
}
