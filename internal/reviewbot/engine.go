package reviewbot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/cache"
	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/internal/vector"
	"github.com/review-agent/backend/pkg/logger"
	"github.com/review-agent/backend/pkg/utils"
)

const recentDateCount = 7

type Classifier interface {
	Classify(ctx context.Context, content string) models.Category
}

type Generator interface {
	Generate(ctx context.Context, review models.Review, category models.Category) models.ReviewResponse
}

type IndexInspector interface {
	Info(ctx context.Context) map[models.Country]vector.Info
}

// Recorder archives generated replies.
type Recorder interface {
	RecordResponse(ctx context.Context, fingerprint string, resp models.ReviewResponse, category models.Category) error
}

// Engine runs reviews through classify, generate and cache. Process calls
// are serialized.
type Engine struct {
	classifier Classifier
	generator  Generator
	cache      *cache.Store
	indexes    IndexInspector
	recorder   Recorder
	now        func() time.Time

	mu sync.Mutex
}

func NewEngine(classifier Classifier, generator Generator, store *cache.Store, indexes IndexInspector) *Engine {
	return &Engine{
		classifier: classifier,
		generator:  generator,
		cache:      store,
		indexes:    indexes,
		now:        time.Now,
	}
}

func (e *Engine) SetRecorder(r Recorder) {
	e.mu.Lock()
	e.recorder = r
	e.mu.Unlock()
}

// Process returns the reply for review. A review whose fingerprint is
// cached is answered from the cache without any model call.
func (e *Engine) Process(ctx context.Context, review models.Review) (models.ReviewResponse, error) {
	if err := review.Validate(); err != nil {
		metrics.ReviewsProcessed.WithLabelValues(string(review.Country), "invalid").Inc()
		return models.ReviewResponse{}, fmt.Errorf("invalid review %q: %w", review.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.ReviewResponse{}, err
	}

	start := e.now()
	fingerprint := utils.Fingerprint(review.Content, string(review.Country), string(review.Platform))

	if entry, ok := e.cache.Get(fingerprint); ok {
		metrics.CacheHits.WithLabelValues("response").Inc()
		metrics.ReviewsProcessed.WithLabelValues(string(review.Country), "cached").Inc()
		metrics.ReviewDuration.WithLabelValues("cached").Observe(time.Since(start).Seconds())
		logger.Info("Serving cached response", zap.String("review_id", review.ID), zap.String("fingerprint", fingerprint))
		return entry.Response(), nil
	}
	metrics.CacheMisses.WithLabelValues("response").Inc()

	review.Category = e.classifier.Classify(ctx, review.Content)
	logger.Info("Review classified",
		zap.String("review_id", review.ID),
		zap.String("category", string(review.Category)),
	)

	resp := e.generator.Generate(ctx, review, review.Category)
	if resp.UsedSources == nil {
		resp.UsedSources = []string{}
	}

	e.cache.Put(fingerprint, models.NewCacheEntry(resp, review.Category))
	if err := e.cache.Persist(ctx); err != nil {
		logger.Warn("Reply cached in memory only", zap.String("review_id", review.ID), zap.Error(err))
	}

	if e.recorder != nil {
		if err := e.recorder.RecordResponse(ctx, fingerprint, resp, review.Category); err != nil {
			logger.Warn("Failed to archive response", zap.String("review_id", review.ID), zap.Error(err))
		}
	}

	metrics.ReviewsProcessed.WithLabelValues(string(review.Country), "generated").Inc()
	metrics.ReviewDuration.WithLabelValues("generated").Observe(time.Since(start).Seconds())
	return resp, nil
}

type BatchFailure struct {
	ReviewID string `json:"review_id"`
	Index    int    `json:"index"`
	Err      error  `json:"-"`
}

func (f BatchFailure) Error() string {
	return fmt.Sprintf("review %s (#%d): %v", f.ReviewID, f.Index, f.Err)
}

// ProcessBatch handles reviews in order. A failing or panicking item is
// logged, reported in the failure list and skipped.
func (e *Engine) ProcessBatch(ctx context.Context, reviews []models.Review) ([]models.ReviewResponse, []BatchFailure) {
	logger.Info("Processing review batch", zap.Int("reviews", len(reviews)))

	responses := make([]models.ReviewResponse, 0, len(reviews))
	var failures []BatchFailure

	for i, review := range reviews {
		resp, err := e.processSafely(ctx, review)
		if err != nil {
			logger.Error("Review failed in batch",
				zap.String("review_id", review.ID),
				zap.Int("index", i),
				zap.Error(err),
			)
			metrics.ReviewsProcessed.WithLabelValues(string(review.Country), "failed").Inc()
			failures = append(failures, BatchFailure{ReviewID: review.ID, Index: i, Err: err})
			continue
		}
		responses = append(responses, resp)
	}

	logger.Info("Review batch finished",
		zap.Int("responses", len(responses)),
		zap.Int("failures", len(failures)),
	)
	return responses, failures
}

func (e *Engine) processSafely(ctx context.Context, review models.Review) (resp models.ReviewResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing review: %v", r)
		}
	}()
	return e.Process(ctx, review)
}

type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Statistics struct {
	TotalResponses        int                            `json:"total_responses"`
	ByCountry             map[string]int                 `json:"by_country"`
	ByPlatform            map[string]int                 `json:"by_platform"`
	ByCategory            map[string]int                 `json:"by_category"`
	RecentDates           []DateCount                    `json:"recent_dates"`
	AverageResponseLength float64                        `json:"average_response_length"`
	Indexes               map[models.Country]vector.Info `json:"indexes"`
	LastUpdated           time.Time                      `json:"last_updated"`
}

func (e *Engine) Statistics(ctx context.Context) Statistics {
	entries := e.cache.Snapshot()

	stats := Statistics{
		TotalResponses: len(entries),
		ByCountry:      map[string]int{},
		ByPlatform:     map[string]int{},
		ByCategory:     map[string]int{},
		RecentDates:    []DateCount{},
		LastUpdated:    e.now(),
	}

	byDate := map[string]int{}
	totalLength := 0
	for _, entry := range entries {
		stats.ByCountry[string(entry.Country)]++
		stats.ByPlatform[string(entry.Platform)]++
		category := entry.Category
		if category == "" {
			category = models.CategoryOther
		}
		stats.ByCategory[string(category)]++
		byDate[entry.GeneratedAt.Format("2006-01-02")]++
		totalLength += len([]rune(entry.ResponseText))
	}
	if len(entries) > 0 {
		stats.AverageResponseLength = float64(totalLength) / float64(len(entries))
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > recentDateCount {
		dates = dates[:recentDateCount]
	}
	for _, d := range dates {
		stats.RecentDates = append(stats.RecentDates, DateCount{Date: d, Count: byDate[d]})
	}

	if e.indexes != nil {
		stats.Indexes = e.indexes.Info(ctx)
	}
	return stats
}

// ClearCache empties the reply cache and removes its persisted copy.
func (e *Engine) ClearCache(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.cache.Len()
	if err := e.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear response cache: %w", err)
	}
	logger.Info("Response cache cleared", zap.Int("entries", n))
	return nil
}
