package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

const indexSchema = `
CREATE TABLE chunks (
	seq INTEGER PRIMARY KEY,
	chunk_id TEXT NOT NULL,
	text TEXT NOT NULL,
	source_url TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	embedding BLOB NOT NULL
);
CREATE TABLE meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// SQLiteStore keeps one self-contained SQLite file per country under dir.
type SQLiteStore struct {
	dir string
}

func NewSQLiteStore(dir string) *SQLiteStore {
	return &SQLiteStore{dir: dir}
}

func (s *SQLiteStore) path(country models.Country) string {
	return filepath.Join(s.dir, country.Key()+"_index.db")
}

func (s *SQLiteStore) Exists(_ context.Context, country models.Country) (bool, error) {
	info, err := os.Stat(s.path(country))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat index: %w", err)
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

func (s *SQLiteStore) Load(ctx context.Context, country models.Country) ([]Entry, error) {
	path := s.path(country)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("index artifact %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer db.Close()

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT chunk_id, text, source_url, doc_type, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			chunk models.KnowledgeChunk
			blob  []byte
		)
		if err := rows.Scan(&chunk.ChunkID, &chunk.Text, &chunk.SourceURL, &chunk.DocType, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		embedding, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ChunkID, err)
		}
		if meta.dim > 0 && len(embedding) != meta.dim {
			return nil, fmt.Errorf("chunk %s has dimension %d, index declares %d", chunk.ChunkID, len(embedding), meta.dim)
		}
		chunk.Country = country
		entries = append(entries, Entry{Chunk: chunk, Embedding: embedding})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	if len(entries) != meta.count {
		return nil, fmt.Errorf("index holds %d chunks, meta declares %d", len(entries), meta.count)
	}
	return entries, nil
}

// Save writes entries into a fresh database beside the target and renames
// it into place.
func (s *SQLiteStore) Save(ctx context.Context, country models.Country, entries []Entry) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, country.Key()+"_index.*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp index: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if err := writeIndexFile(ctx, tmpName, country, entries); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path(country)); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	logger.Info("Index persisted",
		zap.String("country", string(country)),
		zap.String("path", s.path(country)),
		zap.Int("entries", len(entries)),
	)
	return nil
}

func (s *SQLiteStore) Drop(_ context.Context, country models.Country) error {
	if err := os.Remove(s.path(country)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove index: %w", err)
	}
	return nil
}

func writeIndexFile(ctx context.Context, path string, country models.Country, entries []Entry) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open temp index: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, indexSchema); err != nil {
		return fmt.Errorf("failed to create index schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (seq, chunk_id, text, source_url, doc_type, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	dim := 0
	for i, e := range entries {
		if dim == 0 {
			dim = len(e.Embedding)
		} else if len(e.Embedding) != dim {
			return fmt.Errorf("chunk %s has dimension %d, expected %d", e.Chunk.ChunkID, len(e.Embedding), dim)
		}
		if _, err := stmt.ExecContext(ctx, i, e.Chunk.ChunkID, e.Chunk.Text, e.Chunk.SourceURL,
			e.Chunk.DocType, encodeEmbedding(e.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", e.Chunk.ChunkID, err)
		}
	}

	meta := map[string]string{
		"country":  string(country),
		"dim":      strconv.Itoa(dim),
		"count":    strconv.Itoa(len(entries)),
		"built_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

type indexMeta struct {
	dim   int
	count int
}

func readMeta(ctx context.Context, db *sql.DB) (indexMeta, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return indexMeta{}, fmt.Errorf("failed to read index meta: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return indexMeta{}, fmt.Errorf("failed to scan meta: %w", err)
		}
		values[k] = v
	}
	if err := rows.Err(); err != nil {
		return indexMeta{}, err
	}

	var meta indexMeta
	if meta.count, err = strconv.Atoi(values["count"]); err != nil {
		return indexMeta{}, fmt.Errorf("invalid meta count %q", values["count"])
	}
	if meta.dim, err = strconv.Atoi(values["dim"]); err != nil {
		return indexMeta{}, fmt.Errorf("invalid meta dim %q", values["dim"])
	}
	return meta, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
