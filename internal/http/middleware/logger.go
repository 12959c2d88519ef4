package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ErrorLocalKey holds an internal error message for the request log. Handlers
// set it instead of putting details in the response body.
const ErrorLocalKey = "error"

// Logger is a middleware that logs each HTTP request as one JSON line.
// Required fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path
// - status
// - latency (in milliseconds, as float)
func Logger(log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Collect fields after handler executed to capture final status
		fields := logrus.Fields{
			"request_id": RequestIDFrom(c),
			"method":     c.Method(),
			// Use only the path segment (no query string)
			"path":    c.Path(),
			"status":  statusOf(c, err),
			"latency": float64(time.Since(start).Microseconds()) / 1000,
		}

		entry := log.WithFields(fields)
		if msg, ok := c.Locals(ErrorLocalKey).(string); ok {
			entry.WithField("error", msg).Error("request failed")
		} else {
			entry.Info("request")
		}

		return err
	}
}

