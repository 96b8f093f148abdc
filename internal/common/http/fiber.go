package http

import (
	"strconv"
	"time"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/common/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the header used to propagate request IDs.
	RequestIDHeader = "X-Request-ID"
	// RequestIDLocalKey is the fiber locals key holding the request ID.
	RequestIDLocalKey = "request_id"
)

type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RequestID reads X-Request-ID or generates one, stores it in locals and
// echoes it on the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(RequestIDLocalKey, id)
		c.Set(RequestIDHeader, id)
		return c.Next()
	}
}

// FiberRequestID returns the request ID stored by RequestID.
func FiberRequestID(c *fiber.Ctx) string {
	if s, ok := c.Locals(RequestIDLocalKey).(string); ok {
		return s
	}
	return ""
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.Info("HTTP request", map[string]interface{}{
			"requestId": FiberRequestID(c),
			"method":    c.Method(),
			"path":      c.Path(),
			"status":    c.Response().StatusCode(),
			"latencyMs": time.Since(start).Milliseconds(),
		})
		return err
	}
}

// Prometheus counts requests by route pattern, skipping /metrics.
func Prometheus() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		metrics.HTTPRequests.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}

// WriteError writes the standard error envelope without leaking internals.
func WriteError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: FiberRequestID(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

// FiberErrorHandler standardizes errors that escape fiber handlers.
func FiberErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return WriteError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return WriteError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return WriteError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			log.Error("Unhandled request error", map[string]interface{}{
				"requestId": FiberRequestID(c),
				"path":      c.Path(),
				"error":     err.Error(),
			})
			return WriteError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
