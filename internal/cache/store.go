package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

// Backend persists the whole reply cache. Save always overwrites.
type Backend interface {
	Load(ctx context.Context) (map[string]models.CacheEntry, error)
	Save(ctx context.Context, entries map[string]models.CacheEntry) error
	Clear(ctx context.Context) error
}

// Store is the in-memory reply cache keyed by review fingerprint. Memory is
// authoritative; backend failures are logged and never lose entries.
type Store struct {
	backend Backend

	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		entries: make(map[string]models.CacheEntry),
	}
}

// Load replaces the in-memory entries with the backend contents. A backend
// error leaves the store empty.
func (s *Store) Load(ctx context.Context) error {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		logger.Warn("Failed to load response cache, starting empty", zap.Error(err))
		loaded = nil
	}

	s.mu.Lock()
	s.entries = make(map[string]models.CacheEntry, len(loaded))
	for k, v := range loaded {
		s.entries[k] = v
	}
	s.mu.Unlock()

	logger.Info("Response cache loaded", zap.Int("entries", len(loaded)))
	return err
}

func (s *Store) Get(fingerprint string) (models.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[fingerprint]
	return entry, ok
}

func (s *Store) Put(fingerprint string, entry models.CacheEntry) {
	s.mu.Lock()
	s.entries[fingerprint] = entry
	s.mu.Unlock()
}

// Persist writes the full store through the backend.
func (s *Store) Persist(ctx context.Context) error {
	snapshot := s.Snapshot()
	if err := s.backend.Save(ctx, snapshot); err != nil {
		logger.Error("Failed to persist response cache", zap.Error(err), zap.Int("entries", len(snapshot)))
		return err
	}
	return nil
}

// Clear empties memory first, then removes the persisted artifact.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]models.CacheEntry)
	s.mu.Unlock()

	if err := s.backend.Clear(ctx); err != nil {
		logger.Error("Failed to clear persisted response cache", zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Snapshot() map[string]models.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.CacheEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
