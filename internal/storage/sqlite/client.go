package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

// Client is the archive of generated replies and index builds.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		review_id TEXT NOT NULL,
		country TEXT NOT NULL,
		platform TEXT NOT NULL,
		category TEXT NOT NULL,
		response_text TEXT NOT NULL,
		generated_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_responses_fingerprint ON responses(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_responses_country ON responses(country);
	CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at);

	CREATE TABLE IF NOT EXISTS response_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		response_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		source_url TEXT NOT NULL,
		FOREIGN KEY (response_id) REFERENCES responses(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_response ON response_sources(response_id);

	CREATE TABLE IF NOT EXISTS index_builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		country TEXT NOT NULL,
		pages INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		built_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_country ON index_builds(country);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// RecordResponse archives a generated reply and its sources in one
// transaction.
func (c *Client) RecordResponse(ctx context.Context, fingerprint string, resp models.ReviewResponse, category models.Category) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO responses (id, fingerprint, review_id, country, platform, category, response_text, generated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		fingerprint,
		resp.ReviewID,
		string(resp.Country),
		string(resp.Platform),
		string(category),
		resp.ResponseText,
		resp.GeneratedAt.UnixNano(),
		time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	for i, src := range resp.UsedSources {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO response_sources (response_id, position, source_url) VALUES (?, ?, ?)`,
			id, i, src,
		)
		if err != nil {
			return fmt.Errorf("failed to insert response source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit response: %w", err)
	}

	logger.Debug("Response archived", zap.String("id", id), zap.String("review_id", resp.ReviewID))
	return nil
}

// RecentResponses returns up to limit archived replies, newest first.
func (c *Client) RecentResponses(ctx context.Context, limit int) ([]models.ResponseRecord, error) {
	return c.queryResponses(ctx, `
		SELECT id, fingerprint, review_id, country, platform, category, response_text, generated_at
		FROM responses
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
}

// ResponsesByCountry is RecentResponses restricted to one country.
func (c *Client) ResponsesByCountry(ctx context.Context, country models.Country, limit int) ([]models.ResponseRecord, error) {
	return c.queryResponses(ctx, `
		SELECT id, fingerprint, review_id, country, platform, category, response_text, generated_at
		FROM responses
		WHERE country = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, string(country), limit)
}

func (c *Client) queryResponses(ctx context.Context, query string, args ...interface{}) ([]models.ResponseRecord, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	records := []models.ResponseRecord{}
	for rows.Next() {
		var rec models.ResponseRecord
		var country, platform, category string
		var generatedAt int64

		err := rows.Scan(
			&rec.ID,
			&rec.Fingerprint,
			&rec.Response.ReviewID,
			&country,
			&platform,
			&category,
			&rec.Response.ResponseText,
			&generatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}

		rec.Response.Country = models.Country(country)
		rec.Response.Platform = models.Platform(platform)
		rec.Response.GeneratedAt = time.Unix(0, generatedAt)
		rec.Category = models.Category(category)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}

	for i := range records {
		sources, err := c.sources(ctx, records[i].ID)
		if err != nil {
			return nil, err
		}
		records[i].Response.UsedSources = sources
	}
	return records, nil
}

func (c *Client) sources(ctx context.Context, responseID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT source_url FROM response_sources WHERE response_id = ? ORDER BY position`, responseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	sources := []string{}
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (c *Client) CountResponses(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count responses: %w", err)
	}
	return n, nil
}

func (c *Client) RecordIndexBuild(ctx context.Context, country models.Country, pages, chunks int) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO index_builds (country, pages, chunks, built_at) VALUES (?, ?, ?, ?)`,
		string(country), pages, chunks, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record index build: %w", err)
	}

	logger.Info("Index build recorded",
		zap.String("country", string(country)),
		zap.Int("pages", pages),
		zap.Int("chunks", chunks),
	)
	return nil
}

// LastIndexBuilds returns the most recent build per country. Countries that
// were never built are absent.
func (c *Client) LastIndexBuilds(ctx context.Context) (map[models.Country]models.IndexBuild, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT b.id, b.country, b.pages, b.chunks, b.built_at
		FROM index_builds b
		WHERE b.id = (SELECT MAX(id) FROM index_builds WHERE country = b.country)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query index builds: %w", err)
	}
	defer rows.Close()

	out := map[models.Country]models.IndexBuild{}
	for rows.Next() {
		var b models.IndexBuild
		var country string
		var builtAt int64
		if err := rows.Scan(&b.ID, &country, &b.Pages, &b.Chunks, &builtAt); err != nil {
			return nil, fmt.Errorf("failed to scan index build: %w", err)
		}
		b.Country = models.Country(country)
		b.BuiltAt = time.Unix(0, builtAt)
		out[b.Country] = b
	}
	return out, rows.Err()
}
