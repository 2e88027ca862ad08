package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

const DefaultTopK = 3

var ErrNoChunks = errors.New("no chunks for country")

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists a country's index entries. Save replaces whatever was
// stored for the country.
type Store interface {
	Exists(ctx context.Context, country models.Country) (bool, error)
	Load(ctx context.Context, country models.Country) ([]Entry, error)
	Save(ctx context.Context, country models.Country, entries []Entry) error
	Drop(ctx context.Context, country models.Country) error
}

type Info struct {
	Exists  bool `json:"exists"`
	Loaded  bool `json:"loaded"`
	Entries int  `json:"entries"`
}

// Manager owns one Index per country.
type Manager struct {
	store    Store
	embedder Embedder
	topK     int

	mu      sync.RWMutex
	indexes map[models.Country]*Index
}

func NewManager(store Store, embedder Embedder, topK int) *Manager {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Manager{
		store:    store,
		embedder: embedder,
		topK:     topK,
		indexes:  make(map[models.Country]*Index),
	}
}

// Load reads the persisted index for country into memory. A missing or
// unreadable artifact is logged and reported as nil.
func (m *Manager) Load(ctx context.Context, country models.Country) *Index {
	exists, err := m.store.Exists(ctx, country)
	if err != nil {
		logger.Warn("Failed to check index", zap.String("country", string(country)), zap.Error(err))
		return nil
	}
	if !exists {
		logger.Info("No index found", zap.String("country", string(country)))
		return nil
	}

	entries, err := m.store.Load(ctx, country)
	if err != nil {
		logger.Warn("Failed to load index", zap.String("country", string(country)), zap.Error(err))
		return nil
	}

	idx := NewIndex(country, entries)
	m.set(country, idx)
	logger.Info("Index loaded", zap.String("country", string(country)), zap.Int("entries", idx.Len()))
	return idx
}

// BuildOrLoad returns the persisted index when it loads, otherwise builds
// one from the country's chunks.
func (m *Manager) BuildOrLoad(ctx context.Context, chunks []models.KnowledgeChunk, country models.Country) (*Index, error) {
	if idx := m.Load(ctx, country); idx != nil {
		return idx, nil
	}
	return m.Build(ctx, chunks, country)
}

// Build embeds the country's chunks, persists them and replaces the
// in-memory index.
func (m *Manager) Build(ctx context.Context, chunks []models.KnowledgeChunk, country models.Country) (*Index, error) {
	entries, err := m.embed(ctx, chunks, country)
	if err != nil {
		metrics.IndexBuilds.WithLabelValues(string(country), "error").Inc()
		return nil, err
	}

	if err := m.store.Save(ctx, country, entries); err != nil {
		metrics.IndexBuilds.WithLabelValues(string(country), "error").Inc()
		return nil, fmt.Errorf("failed to persist %s index: %w", country, err)
	}

	idx := NewIndex(country, entries)
	m.set(country, idx)
	metrics.IndexBuilds.WithLabelValues(string(country), "ok").Inc()
	logger.Info("Index built", zap.String("country", string(country)), zap.Int("entries", idx.Len()))
	return idx, nil
}

// Append adds the country's chunks to its index, creating the index when
// none is loaded, and re-persists the result.
func (m *Manager) Append(ctx context.Context, chunks []models.KnowledgeChunk, country models.Country) error {
	entries, err := m.embed(ctx, chunks, country)
	if err != nil {
		return err
	}

	current := m.Get(country)
	if current == nil {
		current = m.Load(ctx, country)
	}
	var next *Index
	if current == nil {
		next = NewIndex(country, entries)
	} else {
		next = current.With(entries)
	}

	if err := m.store.Save(ctx, country, next.entries); err != nil {
		return fmt.Errorf("failed to persist %s index: %w", country, err)
	}
	m.set(country, next)
	logger.Info("Index updated",
		zap.String("country", string(country)),
		zap.Int("added", len(entries)),
		zap.Int("entries", next.Len()),
	)
	return nil
}

// Search returns up to k chunks closest to query. It never fails: a
// missing index or an embedding error yields an empty result.
func (m *Manager) Search(ctx context.Context, query string, country models.Country, k int) []models.KnowledgeChunk {
	if k <= 0 {
		k = m.topK
	}

	idx := m.Get(country)
	if idx == nil || idx.Len() == 0 {
		logger.Warn("Search on missing index", zap.String("country", string(country)))
		metrics.RetrievalResults.WithLabelValues(string(country)).Observe(0)
		return []models.KnowledgeChunk{}
	}

	embedding, err := m.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		logger.Warn("Failed to embed search query", zap.String("country", string(country)), zap.Error(err))
		metrics.RetrievalResults.WithLabelValues(string(country)).Observe(0)
		return []models.KnowledgeChunk{}
	}

	results := idx.Search(embedding, k)
	chunks := make([]models.KnowledgeChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, r.Chunk)
	}
	metrics.RetrievalResults.WithLabelValues(string(country)).Observe(float64(len(chunks)))
	return chunks
}

func (m *Manager) Exists(ctx context.Context, country models.Country) bool {
	ok, err := m.store.Exists(ctx, country)
	if err != nil {
		logger.Warn("Failed to check index", zap.String("country", string(country)), zap.Error(err))
		return false
	}
	return ok
}

// Drop removes the country's index from memory and storage.
func (m *Manager) Drop(ctx context.Context, country models.Country) error {
	m.mu.Lock()
	delete(m.indexes, country)
	m.mu.Unlock()
	metrics.IndexedChunks.WithLabelValues(string(country)).Set(0)

	if err := m.store.Drop(ctx, country); err != nil {
		return fmt.Errorf("failed to drop %s index: %w", country, err)
	}
	logger.Info("Index dropped", zap.String("country", string(country)))
	return nil
}

func (m *Manager) Info(ctx context.Context) map[models.Country]Info {
	out := make(map[models.Country]Info, len(models.Countries))
	for _, country := range models.Countries {
		info := Info{Exists: m.Exists(ctx, country)}
		if idx := m.Get(country); idx != nil {
			info.Loaded = true
			info.Entries = idx.Len()
		}
		out[country] = info
	}
	return out
}

func (m *Manager) Get(country models.Country) *Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[country]
}

func (m *Manager) set(country models.Country, idx *Index) {
	m.mu.Lock()
	m.indexes[country] = idx
	m.mu.Unlock()
	metrics.IndexedChunks.WithLabelValues(string(country)).Set(float64(idx.Len()))
}

func (m *Manager) embed(ctx context.Context, chunks []models.KnowledgeChunk, country models.Country) ([]Entry, error) {
	var selected []models.KnowledgeChunk
	for _, ch := range chunks {
		if ch.Country == country {
			selected = append(selected, ch)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, country)
	}

	texts := make([]string, len(selected))
	for i, ch := range selected {
		texts[i] = ch.Text
	}
	embeddings, err := m.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s chunks: %w", country, err)
	}
	if len(embeddings) != len(selected) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(selected))
	}

	entries := make([]Entry, len(selected))
	for i := range selected {
		entries[i] = Entry{Chunk: selected[i], Embedding: embeddings[i]}
	}
	return entries, nil
}
