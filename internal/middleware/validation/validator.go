package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

const DefaultMaxContentLength = 5000

var (
	ErrContentRequired   = errors.New("content is required and must be a string")
	ErrContentTooLong    = errors.New("content exceeds maximum length")
	ErrSuspiciousContent = errors.New("Invalid review content")
)

type Config struct {
	MaxContentLength    int
	MaxBatchSize        int
	AllowedContentTypes []string
	// ReviewPath is the single-review endpoint; ReviewPath+"/batch" is the
	// batch endpoint.
	ReviewPath string
	Logger     *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxContentLength == 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 100
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.ReviewPath == "" {
		cfg.ReviewPath = "/api/v1/reviews"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	batchPath := cfg.ReviewPath + "/batch"

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := strings.TrimSuffix(c.Path(), "/")

		switch path {
		case cfg.ReviewPath:
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid JSON format")
			}
			content, _ := req["content"].(string)
			if err := ReviewContent(content, cfg.MaxContentLength); err != nil {
				if errors.Is(err, ErrSuspiciousContent) {
					cfg.Logger.Warn("Potential XSS attempt",
						zap.String("ip", c.IP()),
						zap.String("path", c.Path()),
					)
				}
				return badRequest(c, err.Error())
			}

		// Item content is checked by the batch handler so one bad review
		// lands in its failures instead of rejecting the request.
		case batchPath:
			var req struct {
				Reviews []map[string]interface{} `json:"reviews"`
			}
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "Invalid JSON format")
			}
			if len(req.Reviews) == 0 {
				return badRequest(c, "reviews must be a non-empty array")
			}
			if len(req.Reviews) > cfg.MaxBatchSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": fmt.Sprintf("Batch exceeds maximum of %d reviews", cfg.MaxBatchSize),
				})
			}
		}

		return c.Next()
	}
}

// ReviewContent checks review text against the length limit and the script
// injection pattern. A non-positive maxLength uses DefaultMaxContentLength.
func ReviewContent(content string, maxLength int) error {
	if maxLength <= 0 {
		maxLength = DefaultMaxContentLength
	}
	if strings.TrimSpace(content) == "" {
		return ErrContentRequired
	}
	if utf8.RuneCountInString(content) > maxLength {
		return ErrContentTooLong
	}
	if containsXSS(content) {
		return ErrSuspiciousContent
	}
	return nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
