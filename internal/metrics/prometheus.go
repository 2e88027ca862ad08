package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReviewDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewbot_review_duration_seconds",
			Help:    "Review processing duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"outcome"},
	)

	ReviewsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_reviews_processed_total",
			Help: "Total number of reviews processed",
		},
		[]string{"country", "outcome"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CategoriesAssigned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_categories_total",
			Help: "Reviews per assigned category",
		},
		[]string{"category"},
	)

	FallbacksUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_fallbacks_total",
			Help: "Canned replies or default categories used after a model failure",
		},
		[]string{"stage", "country"},
	)

	Truncations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_truncations_total",
			Help: "Generated replies cut down to the platform limit",
		},
		[]string{"platform", "mode"},
	)

	ResponseLength = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewbot_response_length_chars",
			Help:    "Length of returned replies in characters",
			Buckets: []float64{50, 100, 200, 300, 350, 400, 500},
		},
		[]string{"platform"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewbot_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	PagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_pages_fetched_total",
			Help: "Knowledge-base pages fetched",
		},
		[]string{"country", "status"},
	)

	IndexedChunks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewbot_indexed_chunks",
			Help: "Entries held by each country index",
		},
		[]string{"country"},
	)

	RetrievalResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewbot_retrieval_results_count",
			Help:    "Number of chunks returned per search",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
		[]string{"country"},
	)

	IndexBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewbot_index_builds_total",
			Help: "Index builds per country and result",
		},
		[]string{"country", "status"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ReviewDuration,
			ReviewsProcessed,
			CacheHits,
			CacheMisses,
			CategoriesAssigned,
			FallbacksUsed,
			Truncations,
			ResponseLength,
			LLMTokensUsed,
			CircuitState,
			PagesFetched,
			IndexedChunks,
			RetrievalResults,
			IndexBuilds,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
