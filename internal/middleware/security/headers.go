package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	IsDevelopment bool
	// APIPrefix marks responses that must never be cached by intermediaries.
	APIPrefix string
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "no-referrer")
		c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if cfg.APIPrefix != "" && strings.HasPrefix(c.Path(), cfg.APIPrefix) {
			c.Set(fiber.HeaderCacheControl, "no-store")
		}

		return c.Next()
	}
}
