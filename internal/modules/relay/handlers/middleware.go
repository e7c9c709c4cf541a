package handlers

import "github.com/gofiber/fiber/v2"

// AdminKeyMiddleware guards the admin surface with a shared API key, accepted
// from the X-Admin-Key header or a ?key= query parameter.
func AdminKeyMiddleware(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if adminKey == "" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "admin API is not configured",
			})
		}

		key := c.Get("X-Admin-Key")
		if key == "" {
			key = c.Query("key")
		}
		if key != adminKey {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		return c.Next()
	}
}
