package responder

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/llm"
	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

const (
	DefaultTemperature = 0.3
	DefaultMaxLength   = 350
	retrievalK         = 3
)

type Retriever interface {
	Search(ctx context.Context, query string, country models.Country, k int) []models.KnowledgeChunk
}

type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Limits holds the reply length cap per platform, in characters.
type Limits struct {
	ByPlatform map[models.Platform]int
	Default    int
}

func DefaultLimits() Limits {
	return Limits{
		ByPlatform: map[models.Platform]int{
			models.PlatformGooglePlay: 350,
			models.PlatformAppStore:   500,
		},
		Default: DefaultMaxLength,
	}
}

func (l Limits) For(p models.Platform) int {
	if n, ok := l.ByPlatform[p]; ok && n > 0 {
		return n
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultMaxLength
}

type Generator struct {
	retriever   Retriever
	completer   Completer
	limits      Limits
	temperature float32
	now         func() time.Time
}

func New(retriever Retriever, completer Completer, limits Limits, temperature float32) *Generator {
	return &Generator{
		retriever:   retriever,
		completer:   completer,
		limits:      limits,
		temperature: temperature,
		now:         time.Now,
	}
}

// Generate drafts a reply for review. It always returns a response: model
// failures and empty output produce the country's canned fallback.
func (g *Generator) Generate(ctx context.Context, review models.Review, category models.Category) models.ReviewResponse {
	chunks := g.retriever.Search(ctx, review.Content, review.Country, retrievalK)
	maxLength := g.limits.For(review.Platform)

	system, user := templateFor(review.Country).render(promptVars{
		author:    sanitizeAuthor(review.Author),
		country:   review.Country,
		category:  category,
		content:   review.Content,
		context:   knowledgeContext(chunks),
		maxLength: maxLength,
	})

	resp, err := g.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		Temperature:  g.temperature,
	})
	if err != nil {
		logger.Warn("Response generation failed, using fallback",
			zap.String("review_id", review.ID),
			zap.Error(err),
		)
		return g.fallback(review)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		logger.Warn("Empty completion, using fallback", zap.String("review_id", review.ID))
		return g.fallback(review)
	}

	text, mode := truncate(text, maxLength)
	if mode != truncateNone {
		metrics.Truncations.WithLabelValues(string(review.Platform), string(mode)).Inc()
		logger.Debug("Response truncated",
			zap.String("review_id", review.ID),
			zap.String("mode", string(mode)),
			zap.Int("max_length", maxLength),
		)
	}

	sources := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		sources = append(sources, ch.SourceURL)
	}

	metrics.ResponseLength.WithLabelValues(string(review.Platform)).Observe(float64(len([]rune(text))))

	return models.ReviewResponse{
		ReviewID:     review.ID,
		ResponseText: text,
		GeneratedAt:  g.now(),
		Country:      review.Country,
		Platform:     review.Platform,
		UsedSources:  sources,
	}
}

func (g *Generator) fallback(review models.Review) models.ReviewResponse {
	metrics.FallbacksUsed.WithLabelValues("generate", string(review.Country)).Inc()
	return models.ReviewResponse{
		ReviewID:     review.ID,
		ResponseText: FallbackText(review.Country),
		GeneratedAt:  g.now(),
		Country:      review.Country,
		Platform:     review.Platform,
		UsedSources:  []string{},
	}
}
