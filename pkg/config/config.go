package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Knowledge KnowledgeConfig
	Index     IndexConfig
	Cache     CacheConfig
	Response  ResponseConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        int
	WriteTimeout       int
	BodyLimit          int
	RateLimitPerMinute int
	MaxContentLength   int
	MaxBatchSize       int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled          bool
	Host             string
	Port             int
	Password         string
	DB               int
	EmbeddingTTLHour int
}

type MilvusConfig struct {
	Endpoint         string
	CollectionPrefix string
	VectorDim        int
}

type LLMConfig struct {
	Model          string
	APIKey         string
	BaseURL        string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	MaxAttempts    int
	EmbeddingModel string
}

type KnowledgeConfig struct {
	// Sources maps a lowercase country code to the seed URL of its help center.
	Sources         map[string]string
	MaxSubPages     int
	FetchTimeoutSec int
	UserAgent       string
	ChunkSize       int
	ChunkOverlap    int
}

type IndexConfig struct {
	Backend string
	Path    string
	TopK    int
}

type CacheConfig struct {
	Backend             string
	Path                string
	RedisKey            string
	InvalidateOnRebuild bool
}

type ResponseConfig struct {
	MaxLength           map[string]int
	DefaultMaxLength    int
	Temperature         float32
	ClassifyTemperature float32
}

type SchedulerConfig struct {
	Enabled      bool
	RebuildAt    string
	SweepWeekday string
	SweepAt      string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	viper.Reset()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/review-agent")

	viper.SetEnvPrefix("REVIEWBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.BindEnv("llm.apiKey", "REVIEWBOT_LLM_APIKEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Validate reports configuration problems that must stop the process before
// any review is handled.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.LLM.APIKey) == "" {
		errs = append(errs, errors.New("llm.apiKey is required (set OPENAI_API_KEY)"))
	}
	if c.LLM.Model == "" || c.LLM.EmbeddingModel == "" {
		errs = append(errs, errors.New("llm.model and llm.embeddingModel are required"))
	}
	if len(c.Knowledge.Sources) == 0 {
		errs = append(errs, errors.New("knowledge.sources must name at least one country"))
	}
	if c.Knowledge.ChunkSize <= 0 || c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		errs = append(errs, fmt.Errorf("invalid chunking: size=%d overlap=%d", c.Knowledge.ChunkSize, c.Knowledge.ChunkOverlap))
	}

	switch c.Index.Backend {
	case "sqlite":
		if c.Index.Path == "" {
			errs = append(errs, errors.New("index.path is required for the sqlite backend"))
		}
	case "milvus":
		if c.Milvus.Endpoint == "" || c.Milvus.VectorDim <= 0 {
			errs = append(errs, errors.New("milvus.endpoint and milvus.vectorDim are required for the milvus backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index.backend %q", c.Index.Backend))
	}

	switch c.Cache.Backend {
	case "file":
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("cache.path is required for the file backend"))
		}
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("cache.backend=redis requires redis.enabled"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}

	// Truncation keeps a 10 character margin, so tiny limits cannot hold a reply.
	if c.Response.DefaultMaxLength <= 20 {
		errs = append(errs, fmt.Errorf("response.defaultMaxLength must exceed 20, got %d", c.Response.DefaultMaxLength))
	}
	for platform, limit := range c.Response.MaxLength {
		if limit <= 20 {
			errs = append(errs, fmt.Errorf("response.maxLength.%s must exceed 20, got %d", platform, limit))
		}
	}

	return errors.Join(errs...)
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 120)
	viper.SetDefault("server.bodyLimit", 4194304)
	viper.SetDefault("server.rateLimitPerMinute", 60)
	viper.SetDefault("server.maxContentLength", 5000)
	viper.SetDefault("server.maxBatchSize", 100)

	viper.SetDefault("sqlite.path", "./data/reviewbot.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.embeddingTTLHour", 24*7)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.collectionPrefix", "review_kb")
	viper.SetDefault("milvus.vectorDim", 1536)

	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.3)
	viper.SetDefault("llm.maxTokens", 600)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.maxAttempts", 3)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	viper.SetDefault("knowledge.sources", map[string]string{
		"kr": "https://docs.channel.io/moneywalk/ko",
		"us": "https://docs.channel.io/moneywalkus/en",
	})
	viper.SetDefault("knowledge.maxSubPages", 10)
	viper.SetDefault("knowledge.fetchTimeoutSec", 30)
	viper.SetDefault("knowledge.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	viper.SetDefault("knowledge.chunkSize", 800)
	viper.SetDefault("knowledge.chunkOverlap", 100)

	viper.SetDefault("index.backend", "sqlite")
	viper.SetDefault("index.path", "./vector_stores")
	viper.SetDefault("index.topK", 3)

	viper.SetDefault("cache.backend", "file")
	viper.SetDefault("cache.path", "./response_cache.json")
	viper.SetDefault("cache.redisKey", "reviewbot:responses")
	viper.SetDefault("cache.invalidateOnRebuild", true)

	viper.SetDefault("response.maxLength", map[string]int{
		"google_play": 350,
		"app_store":   500,
	})
	viper.SetDefault("response.defaultMaxLength", 350)
	viper.SetDefault("response.temperature", 0.3)
	viper.SetDefault("response.classifyTemperature", 0)

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.rebuildAt", "02:00")
	viper.SetDefault("scheduler.sweepWeekday", "sunday")
	viper.SetDefault("scheduler.sweepAt", "03:00")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
