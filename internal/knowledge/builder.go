package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/chunker"
	"github.com/review-agent/backend/internal/collector"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/internal/vector"
	"github.com/review-agent/backend/pkg/logger"
)

// IndexRecorder archives completed index builds.
type IndexRecorder interface {
	RecordIndexBuild(ctx context.Context, country models.Country, pages, chunks int) error
}

type Report struct {
	Loaded   []models.Country          `json:"loaded"`
	Built    map[models.Country]int    `json:"built"`
	Failed   map[models.Country]string `json:"failed"`
	Duration time.Duration             `json:"duration"`
}

// Builder turns the configured knowledge-base sites into per-country
// vector indexes.
type Builder struct {
	collector *collector.Collector
	chunker   *chunker.Chunker
	indexes   *vector.Manager
	sources   map[models.Country]string
	recorder  IndexRecorder
	onRebuild func(ctx context.Context) error

	mu sync.Mutex
}

func NewBuilder(c *collector.Collector, ch *chunker.Chunker, indexes *vector.Manager, sources map[models.Country]string) *Builder {
	return &Builder{
		collector: c,
		chunker:   ch,
		indexes:   indexes,
		sources:   sources,
	}
}

func (b *Builder) SetRecorder(r IndexRecorder) {
	b.recorder = r
}

// OnRebuild registers a hook run after a forced rebuild produced at least
// one index.
func (b *Builder) OnRebuild(fn func(ctx context.Context) error) {
	b.onRebuild = fn
}

// Initialize loads every persisted index and builds the countries that have
// none. With force, all indexes are dropped and rebuilt from a fresh crawl.
func (b *Builder) Initialize(ctx context.Context, force bool) (*Report, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	report := &Report{
		Loaded: []models.Country{},
		Built:  map[models.Country]int{},
		Failed: map[models.Country]string{},
	}

	countries := b.countries()
	if force {
		for _, country := range countries {
			if err := b.indexes.Drop(ctx, country); err != nil {
				return report, err
			}
		}
	}

	missing := map[models.Country]string{}
	for _, country := range countries {
		if !force && b.indexes.Load(ctx, country) != nil {
			report.Loaded = append(report.Loaded, country)
			continue
		}
		missing[country] = b.sources[country]
	}

	if len(missing) == 0 {
		report.Duration = time.Since(start)
		logger.Info("Knowledge indexes loaded", zap.Int("countries", len(report.Loaded)))
		return report, nil
	}

	logger.Info("Building knowledge indexes",
		zap.Int("countries", len(missing)),
		zap.Bool("force", force),
	)

	pages := b.collector.Collect(ctx, missing)
	chunks := b.chunker.ChunkPages(pages)

	pageCount := map[models.Country]int{}
	for _, p := range pages {
		pageCount[p.Country]++
	}

	var errs []error
	for _, country := range countries {
		if _, ok := missing[country]; !ok {
			continue
		}
		idx, err := b.indexes.Build(ctx, chunks, country)
		if err != nil {
			logger.Error("Failed to build knowledge index", zap.String("country", string(country)), zap.Error(err))
			report.Failed[country] = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", country, err))
			continue
		}
		report.Built[country] = idx.Len()
		b.record(ctx, country, pageCount[country], idx.Len())
	}

	report.Duration = time.Since(start)
	logger.Info("Knowledge indexes ready",
		zap.Int("loaded", len(report.Loaded)),
		zap.Int("built", len(report.Built)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration),
	)
	return report, errors.Join(errs...)
}

// Rebuild recrawls every source and replaces all indexes, then runs the
// rebuild hook.
func (b *Builder) Rebuild(ctx context.Context) (*Report, error) {
	report, err := b.Initialize(ctx, true)
	if len(report.Built) > 0 && b.onRebuild != nil {
		if hookErr := b.onRebuild(ctx); hookErr != nil {
			logger.Warn("Rebuild hook failed", zap.Error(hookErr))
			err = errors.Join(err, hookErr)
		}
	}
	return report, err
}

func (b *Builder) countries() []models.Country {
	var out []models.Country
	for _, country := range models.Countries {
		if url, ok := b.sources[country]; ok && url != "" {
			out = append(out, country)
		}
	}
	return out
}

func (b *Builder) record(ctx context.Context, country models.Country, pages, chunks int) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.RecordIndexBuild(ctx, country, pages, chunks); err != nil {
		logger.Warn("Failed to record index build", zap.String("country", string(country)), zap.Error(err))
	}
}

// SourcesFromConfig converts configured country keys into seed URLs.
func SourcesFromConfig(raw map[string]string) (map[models.Country]string, error) {
	out := make(map[models.Country]string, len(raw))
	for key, url := range raw {
		country, err := models.ParseCountry(key)
		if err != nil {
			return nil, fmt.Errorf("knowledge source %q: %w", key, err)
		}
		out[country] = url
	}
	return out, nil
}
