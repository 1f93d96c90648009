package middleware

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Recovery converts a handler panic into a 500 response. The stack goes
// to the log, never to the client.
func Recovery(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.Error("handler panic",
				zap.Any("panic", r),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("request_id", requestID(c)),
				zap.ByteString("stack", debug.Stack()),
			)

			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal error",
			})
		}()

		return c.Next()
	}
}
