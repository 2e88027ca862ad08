package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/knowledge"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/internal/vector"
	"github.com/review-agent/backend/pkg/logger"
)

type KnowledgeService interface {
	Rebuild(ctx context.Context) (*knowledge.Report, error)
}

type IndexInspector interface {
	Info(ctx context.Context) map[models.Country]vector.Info
}

type BuildHistory interface {
	LastIndexBuilds(ctx context.Context) (map[models.Country]models.IndexBuild, error)
}

type KnowledgeHandler struct {
	builder KnowledgeService
	indexes IndexInspector
	builds  BuildHistory
}

func NewKnowledgeHandler(builder KnowledgeService, indexes IndexInspector, builds BuildHistory) *KnowledgeHandler {
	return &KnowledgeHandler{
		builder: builder,
		indexes: indexes,
		builds:  builds,
	}
}

func (h *KnowledgeHandler) GetInfo(c *fiber.Ctx) error {
	builds, err := h.builds.LastIndexBuilds(c.Context())
	if err != nil {
		logger.Warn("Failed to read index builds", zap.Error(err))
		builds = map[models.Country]models.IndexBuild{}
	}

	lastBuilds := fiber.Map{}
	for country, b := range builds {
		lastBuilds[string(country)] = fiber.Map{
			"pages":    b.Pages,
			"chunks":   b.Chunks,
			"built_at": b.BuiltAt,
		}
	}

	return c.JSON(fiber.Map{
		"indexes":     h.indexes.Info(c.Context()),
		"last_builds": lastBuilds,
	})
}

// Rebuild recrawls every knowledge source synchronously. A partial failure
// still answers 200 with the failed countries listed.
func (h *KnowledgeHandler) Rebuild(c *fiber.Ctx) error {
	logger.Info("Knowledge rebuild requested", zap.String("ip", c.IP()))

	report, err := h.builder.Rebuild(c.Context())
	if err != nil && (report == nil || len(report.Built) == 0) {
		logger.Error("Knowledge rebuild failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Knowledge rebuild failed",
		})
	}

	return c.JSON(fiber.Map{
		"status":      "rebuilt",
		"built":       report.Built,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	})
}
