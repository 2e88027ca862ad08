package handlers

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/middleware/validation"
	"github.com/review-agent/backend/internal/reviewbot"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type ReviewService interface {
	Process(ctx context.Context, review models.Review) (models.ReviewResponse, error)
	ProcessBatch(ctx context.Context, reviews []models.Review) ([]models.ReviewResponse, []reviewbot.BatchFailure)
	Statistics(ctx context.Context) reviewbot.Statistics
	ClearCache(ctx context.Context) error
}

// ResponseArchive reads archived replies.
type ResponseArchive interface {
	RecentResponses(ctx context.Context, limit int) ([]models.ResponseRecord, error)
	ResponsesByCountry(ctx context.Context, country models.Country, limit int) ([]models.ResponseRecord, error)
	CountResponses(ctx context.Context) (int, error)
}

type ReviewHandler struct {
	reviews          ReviewService
	archive          ResponseArchive
	maxContentLength int
}

func NewReviewHandler(reviews ReviewService, archive ResponseArchive, maxContentLength int) *ReviewHandler {
	return &ReviewHandler{
		reviews:          reviews,
		archive:          archive,
		maxContentLength: maxContentLength,
	}
}

type reviewRequest struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Country   string    `json:"country"`
	Platform  string    `json:"platform"`
}

// toReview normalizes country and platform codes and fills optional fields.
// Content is passed through untouched since the fingerprint covers it.
func (r reviewRequest) toReview() (models.Review, error) {
	country, err := models.ParseCountry(r.Country)
	if err != nil {
		return models.Review{}, err
	}
	platform, err := models.ParsePlatform(r.Platform)
	if err != nil {
		return models.Review{}, err
	}

	review := models.Review{
		ID:        strings.TrimSpace(r.ID),
		Author:    strings.TrimSpace(r.Author),
		Rating:    r.Rating,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
		Country:   country,
		Platform:  platform,
	}
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now()
	}
	return review, review.Validate()
}

func (h *ReviewHandler) ProcessReview(c *fiber.Ctx) error {
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	review, err := req.toReview()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	response, err := h.reviews.Process(c.Context(), review)
	if err != nil {
		logger.Error("Failed to process review", zap.String("review_id", review.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process review",
		})
	}

	return c.JSON(response)
}

type batchFailure struct {
	ReviewID string `json:"review_id"`
	Index    int    `json:"index"`
	Error    string `json:"error"`
}

func (h *ReviewHandler) ProcessBatch(c *fiber.Ctx) error {
	var req struct {
		Reviews []reviewRequest `json:"reviews"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse batch body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	batchID := uuid.New().String()
	logger.Info("Batch received", zap.String("batch_id", batchID), zap.Int("reviews", len(req.Reviews)))

	failures := []batchFailure{}
	reviews := make([]models.Review, 0, len(req.Reviews))
	positions := make([]int, 0, len(req.Reviews))
	for i, r := range req.Reviews {
		review, err := r.toReview()
		if err == nil {
			err = validation.ReviewContent(review.Content, h.maxContentLength)
		}
		if err != nil {
			failures = append(failures, batchFailure{ReviewID: r.ID, Index: i, Error: err.Error()})
			continue
		}
		reviews = append(reviews, review)
		positions = append(positions, i)
	}

	responses, processFailures := h.reviews.ProcessBatch(c.Context(), reviews)
	for _, f := range processFailures {
		failures = append(failures, batchFailure{ReviewID: f.ReviewID, Index: positions[f.Index], Error: f.Err.Error()})
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Index < failures[j].Index })
	if responses == nil {
		responses = []models.ReviewResponse{}
	}

	return c.JSON(fiber.Map{
		"batch_id":  batchID,
		"total":     len(req.Reviews),
		"succeeded": len(responses),
		"failed":    len(failures),
		"responses": responses,
		"failures":  failures,
	})
}

func (h *ReviewHandler) GetHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	var (
		records []models.ResponseRecord
		err     error
	)
	if raw := c.Query("country"); raw != "" {
		country, parseErr := models.ParseCountry(raw)
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": parseErr.Error(),
			})
		}
		records, err = h.archive.ResponsesByCountry(c.Context(), country, limit)
	} else {
		records, err = h.archive.RecentResponses(c.Context(), limit)
	}
	if err != nil {
		logger.Error("Failed to read response history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read history",
		})
	}

	history := make([]fiber.Map, 0, len(records))
	for _, rec := range records {
		history = append(history, fiber.Map{
			"id":          rec.ID,
			"fingerprint": rec.Fingerprint,
			"category":    rec.Category,
			"response":    rec.Response,
		})
	}

	return c.JSON(fiber.Map{
		"history": history,
		"count":   len(history),
	})
}

func (h *ReviewHandler) GetStatistics(c *fiber.Ctx) error {
	stats := h.reviews.Statistics(c.Context())

	archived, err := h.archive.CountResponses(c.Context())
	if err != nil {
		logger.Warn("Failed to count archived responses", zap.Error(err))
		archived = -1
	}

	return c.JSON(fiber.Map{
		"cache":    stats,
		"archived": archived,
	})
}

func (h *ReviewHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.reviews.ClearCache(c.Context()); err != nil {
		logger.Error("Failed to clear cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear cache",
		})
	}
	return c.JSON(fiber.Map{
		"status": "cleared",
	})
}
