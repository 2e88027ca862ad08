package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/review-agent/backend/internal/storage/models"
)

// FileBackend stores the cache as one pretty-printed JSON object. Writes go
// to a temp file in the same directory and are renamed into place.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(_ context.Context) (map[string]models.CacheEntry, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]models.CacheEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	entries := map[string]models.CacheEntry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode cache file %s: %w", b.path, err)
	}
	for k, e := range entries {
		if e.UsedSources == nil {
			e.UsedSources = []string{}
			entries[k] = e
		}
	}
	return entries, nil
}

func (b *FileBackend) Save(_ context.Context, entries map[string]models.CacheEntry) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

func (b *FileBackend) Clear(_ context.Context) error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// MemoryBackend keeps the persisted copy in memory. Used by tests and when
// persistence is disabled.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]models.CacheEntry
	saves   int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(_ context.Context) (map[string]models.CacheEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]models.CacheEntry, len(b.entries))
	for k, v := range b.entries {
		out[k] = v
	}
	return out, nil
}

func (b *MemoryBackend) Save(_ context.Context, entries map[string]models.CacheEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]models.CacheEntry, len(entries))
	for k, v := range entries {
		b.entries[k] = v
	}
	b.saves++
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	return nil
}

// Saves reports how many times Save has been called.
func (b *MemoryBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}
