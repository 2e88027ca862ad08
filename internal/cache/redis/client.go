package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) SetEmbedding(ctx context.Context, key string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	if err := c.client.Set(ctx, "embedding:"+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("key", key))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, key string) ([]float32, error) {
	data, err := c.client.Get(ctx, "embedding:"+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return embedding, nil
}

// ResponseBackend keeps the reply cache in a single Redis hash, one field
// per fingerprint.
type ResponseBackend struct {
	client *Client
	key    string
}

func NewResponseBackend(client *Client, key string) *ResponseBackend {
	return &ResponseBackend{client: client, key: key}
}

func (b *ResponseBackend) Load(ctx context.Context) (map[string]models.CacheEntry, error) {
	raw, err := b.client.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load response cache: %w", err)
	}
	return decodeEntries(raw)
}

// Save replaces the hash with entries in one transaction.
func (b *ResponseBackend) Save(ctx context.Context, entries map[string]models.CacheEntry) error {
	fields, err := encodeEntries(entries)
	if err != nil {
		return err
	}

	pipe := b.client.client.TxPipeline()
	pipe.Del(ctx, b.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, b.key, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save response cache: %w", err)
	}
	return nil
}

func (b *ResponseBackend) Clear(ctx context.Context) error {
	if err := b.client.client.Del(ctx, b.key).Err(); err != nil {
		return fmt.Errorf("failed to clear response cache: %w", err)
	}
	logger.Info("Response cache cleared", zap.String("key", b.key))
	return nil
}

func encodeEntries(entries map[string]models.CacheEntry) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(entries))
	for fp, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache entry %s: %w", fp, err)
		}
		fields[fp] = string(data)
	}
	return fields, nil
}

// decodeEntries skips fields that do not decode so one bad value does not
// hide the rest of the cache.
func decodeEntries(raw map[string]string) (map[string]models.CacheEntry, error) {
	entries := make(map[string]models.CacheEntry, len(raw))
	for fp, value := range raw {
		var entry models.CacheEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			logger.Warn("Skipping corrupt cache entry", zap.String("fingerprint", fp), zap.Error(err))
			continue
		}
		if entry.UsedSources == nil {
			entry.UsedSources = []string{}
		}
		entries[fp] = entry
	}
	return entries, nil
}
