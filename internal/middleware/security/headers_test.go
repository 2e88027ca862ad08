package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHeadersMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		cfg       HeadersConfig
		path      string
		wantHSTS  bool
		wantCache string
	}{
		{"production api", HeadersConfig{APIPrefix: "/api"}, "/api/v1/stats", true, "no-store"},
		{"development", HeadersConfig{IsDevelopment: true, APIPrefix: "/api"}, "/api/v1/stats", false, "no-store"},
		{"non api path", HeadersConfig{APIPrefix: "/api"}, "/metrics", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(HeadersMiddleware(tt.cfg))
			app.Get("/*", func(c *fiber.Ctx) error { return c.SendString("ok") })

			resp, err := app.Test(httptest.NewRequest("GET", tt.path, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.Header.Get("X-Frame-Options") != "DENY" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
				t.Fatalf("headers = %v", resp.Header)
			}
			if got := resp.Header.Get("Strict-Transport-Security") != ""; got != tt.wantHSTS {
				t.Fatalf("HSTS present = %v", got)
			}
			if got := resp.Header.Get("Cache-Control"); got != tt.wantCache {
				t.Fatalf("Cache-Control = %q", got)
			}
		})
	}
}
