package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/api/handlers"
	"github.com/review-agent/backend/internal/cache"
	"github.com/review-agent/backend/internal/cache/redis"
	"github.com/review-agent/backend/internal/chunker"
	"github.com/review-agent/backend/internal/classifier"
	"github.com/review-agent/backend/internal/collector"
	"github.com/review-agent/backend/internal/knowledge"
	"github.com/review-agent/backend/internal/llm"
	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/middleware/ratelimit"
	"github.com/review-agent/backend/internal/middleware/security"
	"github.com/review-agent/backend/internal/middleware/validation"
	"github.com/review-agent/backend/internal/responder"
	"github.com/review-agent/backend/internal/reviewbot"
	"github.com/review-agent/backend/internal/scheduler"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/internal/storage/sqlite"
	"github.com/review-agent/backend/internal/vector"
	"github.com/review-agent/backend/internal/vector/zilliz"
	"github.com/review-agent/backend/pkg/config"
	appLogger "github.com/review-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	metrics.Init()
	appLogger.Info("Starting review reply agent")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sources, err := knowledge.SourcesFromConfig(cfg.Knowledge.Sources)
	if err != nil {
		appLogger.Fatal("Invalid knowledge sources", zap.Error(err))
	}
	limits, err := responseLimits(cfg.Response)
	if err != nil {
		appLogger.Fatal("Invalid response limits", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(cfg.LLM)
	var embedder vector.Embedder = llmClient

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()

		ttl := time.Duration(cfg.Redis.EmbeddingTTLHour) * time.Hour
		embedder = llm.NewCachedEmbedder(llmClient, redisClient, cfg.LLM.EmbeddingModel, ttl)
	}

	var indexStore vector.Store
	switch cfg.Index.Backend {
	case "milvus":
		zillizClient, err := zilliz.NewClient(ctx, cfg.Milvus.Endpoint, cfg.Milvus.CollectionPrefix, cfg.Milvus.VectorDim)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer zillizClient.Close()
		indexStore = zillizClient
	default:
		indexStore = vector.NewSQLiteStore(cfg.Index.Path)
	}
	indexes := vector.NewManager(indexStore, embedder, cfg.Index.TopK)

	var cacheBackend cache.Backend
	switch cfg.Cache.Backend {
	case "redis":
		cacheBackend = redis.NewResponseBackend(redisClient, cfg.Cache.RedisKey)
	case "memory":
		cacheBackend = cache.NewMemoryBackend()
	default:
		cacheBackend = cache.NewFileBackend(cfg.Cache.Path)
	}
	responseCache := cache.NewStore(cacheBackend)
	if err := responseCache.Load(ctx); err != nil {
		appLogger.Warn("Response cache unavailable at startup", zap.String("backend", cfg.Cache.Backend), zap.Error(err))
	}

	engine := reviewbot.NewEngine(
		classifier.New(llmClient, cfg.Response.ClassifyTemperature),
		responder.New(indexes, llmClient, limits, cfg.Response.Temperature),
		responseCache,
		indexes,
	)
	engine.SetRecorder(sqliteClient)

	builder := knowledge.NewBuilder(
		collector.New(
			collector.NewHTTPFetcher(time.Duration(cfg.Knowledge.FetchTimeoutSec)*time.Second, cfg.Knowledge.UserAgent),
			cfg.Knowledge.MaxSubPages,
		),
		chunker.New(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap),
		indexes,
		sources,
	)
	builder.SetRecorder(sqliteClient)
	if cfg.Cache.InvalidateOnRebuild {
		builder.OnRebuild(engine.ClearCache)
	}

	if _, err := builder.Initialize(ctx, false); err != nil {
		appLogger.Warn("Knowledge initialization incomplete, replies for affected countries run without context", zap.Error(err))
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = newScheduler(cfg.Scheduler, builder, engine)
		if err != nil {
			appLogger.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		go sched.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Format == "console",
		APIPrefix:     "/api",
	}))

	reviewHandler := handlers.NewReviewHandler(engine, sqliteClient, cfg.Server.MaxContentLength)
	knowledgeHandler := handlers.NewKnowledgeHandler(builder, indexes, sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1", limiter.Middleware(), validation.Middleware(validation.Config{
		MaxContentLength: cfg.Server.MaxContentLength,
		MaxBatchSize:     cfg.Server.MaxBatchSize,
		ReviewPath:       "/api/v1/reviews",
		Logger:           appLogger.GetLogger(),
	}))

	api.Post("/reviews", reviewHandler.ProcessReview)
	api.Post("/reviews/batch", reviewHandler.ProcessBatch)
	api.Get("/reviews/history", reviewHandler.GetHistory)
	api.Get("/stats", reviewHandler.GetStatistics)
	api.Delete("/cache", reviewHandler.ClearCache)

	api.Get("/knowledge", knowledgeHandler.GetInfo)
	api.Post("/knowledge/rebuild", knowledgeHandler.Rebuild)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  "archive unreachable",
			})
		}
		loaded := 0
		for _, info := range indexes.Info(c.Context()) {
			if info.Loaded {
				loaded++
			}
		}
		return c.JSON(fiber.Map{
			"status":         "ready",
			"indexes_loaded": loaded,
			"countries":      len(sources),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/reviews", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if sched != nil {
		sched.Stop()
	}
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	if err := responseCache.Persist(context.Background()); err != nil {
		appLogger.Warn("Final cache persist failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func responseLimits(cfg config.ResponseConfig) (responder.Limits, error) {
	limits := responder.Limits{
		ByPlatform: map[models.Platform]int{},
		Default:    cfg.DefaultMaxLength,
	}
	for key, n := range cfg.MaxLength {
		platform, err := models.ParsePlatform(key)
		if err != nil {
			return responder.Limits{}, err
		}
		limits.ByPlatform[platform] = n
	}
	return limits, nil
}

func newScheduler(cfg config.SchedulerConfig, builder *knowledge.Builder, engine *reviewbot.Engine) (*scheduler.Scheduler, error) {
	rebuildHour, rebuildMinute, err := scheduler.ParseClock(cfg.RebuildAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler.rebuildAt: %w", err)
	}
	sweepDay, err := scheduler.ParseWeekday(cfg.SweepWeekday)
	if err != nil {
		return nil, fmt.Errorf("scheduler.sweepWeekday: %w", err)
	}
	sweepHour, sweepMinute, err := scheduler.ParseClock(cfg.SweepAt)
	if err != nil {
		return nil, fmt.Errorf("scheduler.sweepAt: %w", err)
	}

	s := scheduler.New()
	s.Add("knowledge-rebuild", scheduler.Daily{Hour: rebuildHour, Minute: rebuildMinute}, func(ctx context.Context) error {
		_, err := builder.Rebuild(ctx)
		return err
	})
	s.Add("cache-stats", scheduler.Weekly{Weekday: sweepDay, Hour: sweepHour, Minute: sweepMinute}, func(ctx context.Context) error {
		stats := engine.Statistics(ctx)
		appLogger.Info("Weekly response cache statistics",
			zap.Int("total_responses", stats.TotalResponses),
			zap.Any("by_country", stats.ByCountry),
			zap.Any("by_category", stats.ByCategory),
			zap.Float64("average_length", stats.AverageResponseLength),
		)
		return nil
	})
	return s, nil
}
