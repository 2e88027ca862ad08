package zilliz

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/internal/vector"
	"github.com/review-agent/backend/pkg/logger"
)

var outputFields = []string{"seq", "chunk_id", "text", "source_url", "doc_type", "embedding"}

// Client stores each country's index as its own Milvus collection named
// {prefix}_{country}. It satisfies vector.Store.
type Client struct {
	client    client.Client
	prefix    string
	vectorDim int
}

func NewClient(ctx context.Context, endpoint, prefix string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Zilliz/Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection_prefix", prefix),
	)

	return newWithClient(c, prefix, vectorDim), nil
}

func newWithClient(c client.Client, prefix string, vectorDim int) *Client {
	return &Client{client: c, prefix: prefix, vectorDim: vectorDim}
}

func (z *Client) Close() error {
	return z.client.Close()
}

func (z *Client) CollectionName(country models.Country) string {
	return z.prefix + "_" + country.Key()
}

func (z *Client) Exists(ctx context.Context, country models.Country) (bool, error) {
	has, err := z.client.HasCollection(ctx, z.CollectionName(country))
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return has, nil
}

func (z *Client) Load(ctx context.Context, country models.Country) ([]vector.Entry, error) {
	name := z.CollectionName(country)

	if err := z.client.LoadCollection(ctx, name, false); err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	result, err := z.client.Query(ctx, name, []string{}, "seq >= 0", outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", name, err)
	}

	entries, err := entriesFromColumns(result, country)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return entries, nil
}

// Save recreates the country's collection with entries.
func (z *Client) Save(ctx context.Context, country models.Country, entries []vector.Entry) error {
	name := z.CollectionName(country)

	if err := z.Drop(ctx, country); err != nil {
		return err
	}
	if err := z.createCollection(ctx, name); err != nil {
		return err
	}
	if err := z.insert(ctx, name, entries); err != nil {
		return err
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 128)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := z.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := z.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection written", zap.String("collection", name), zap.Int("entries", len(entries)))
	return nil
}

func (z *Client) Drop(ctx context.Context, country models.Country) error {
	name := z.CollectionName(country)
	has, err := z.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		return nil
	}
	if err := z.client.DropCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	logger.Info("Collection dropped", zap.String("collection", name))
	return nil
}

func (z *Client) createCollection(ctx context.Context, name string) error {
	schema := &entity.Schema{
		CollectionName: name,
		Description:    "Help center chunks for review replies",
		Fields: []*entity.Field{
			{
				Name:       "seq",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "chunk_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
			{
				Name:     "source_url",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     "doc_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", z.vectorDim),
				},
			},
		},
	}

	if err := z.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

func (z *Client) insert(ctx context.Context, name string, entries []vector.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	seqs := make([]int64, len(entries))
	chunkIDs := make([]string, len(entries))
	texts := make([]string, len(entries))
	sources := make([]string, len(entries))
	docTypes := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))

	for i, e := range entries {
		if len(e.Embedding) != z.vectorDim {
			return fmt.Errorf("chunk %s has dimension %d, collection expects %d", e.Chunk.ChunkID, len(e.Embedding), z.vectorDim)
		}
		seqs[i] = int64(i)
		chunkIDs[i] = e.Chunk.ChunkID
		texts[i] = e.Chunk.Text
		sources[i] = e.Chunk.SourceURL
		docTypes[i] = e.Chunk.DocType
		embeddings[i] = e.Embedding
	}

	_, err := z.client.Insert(
		ctx,
		name,
		"",
		entity.NewColumnInt64("seq", seqs),
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_url", sources),
		entity.NewColumnVarChar("doc_type", docTypes),
		entity.NewColumnFloatVector("embedding", z.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	if err := z.client.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

// entriesFromColumns rebuilds entries from a query result and orders them by
// their original insertion sequence.
func entriesFromColumns(cols []entity.Column, country models.Country) ([]vector.Entry, error) {
	var (
		seqs       []int64
		chunkIDs   []string
		texts      []string
		sources    []string
		docTypes   []string
		embeddings [][]float32
	)

	for _, col := range cols {
		switch c := col.(type) {
		case *entity.ColumnInt64:
			if c.Name() == "seq" {
				seqs = c.Data()
			}
		case *entity.ColumnVarChar:
			switch c.Name() {
			case "chunk_id":
				chunkIDs = c.Data()
			case "text":
				texts = c.Data()
			case "source_url":
				sources = c.Data()
			case "doc_type":
				docTypes = c.Data()
			}
		case *entity.ColumnFloatVector:
			if c.Name() == "embedding" {
				embeddings = c.Data()
			}
		}
	}

	n := len(seqs)
	if len(chunkIDs) != n || len(texts) != n || len(sources) != n || len(docTypes) != n || len(embeddings) != n {
		return nil, fmt.Errorf("query returned ragged columns")
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return seqs[order[a]] < seqs[order[b]] })

	entries := make([]vector.Entry, 0, n)
	for _, i := range order {
		entries = append(entries, vector.Entry{
			Chunk: models.KnowledgeChunk{
				ChunkID:   chunkIDs[i],
				Text:      texts[i],
				SourceURL: sources[i],
				Country:   country,
				DocType:   docTypes[i],
			},
			Embedding: embeddings[i],
		})
	}
	return entries, nil
}
