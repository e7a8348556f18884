package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	corsMethods = []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete, fiber.MethodOptions}
	corsHeaders = []string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization, RequestIDHeader}
	corsExposed = []string{rateLimitHeader, rateRemainingHeader, rateResetHeader, RequestIDHeader}
)

// CORS lets browser dashboards on other origins call the API. Credentials
// travel as Bearer tokens, so the wildcard origin is safe.
func CORS() fiber.Handler {
	methods := strings.Join(corsMethods, ", ")
	headers := strings.Join(corsHeaders, ", ")
	exposed := strings.Join(corsExposed, ", ")

	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		c.Set(fiber.HeaderAccessControlAllowMethods, methods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, headers)
		c.Set(fiber.HeaderAccessControlExposeHeaders, exposed)

		if c.Method() != fiber.MethodOptions {
			return c.Next()
		}
		c.Set(fiber.HeaderAccessControlMaxAge, "86400")
		return c.SendStatus(fiber.StatusNoContent)
	}
}
