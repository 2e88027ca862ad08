package zilliz

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/review-agent/backend/internal/storage/models"
)

func TestCollectionName(t *testing.T) {
	z := newWithClient(nil, "review_kb", 3)
	if got := z.CollectionName(models.CountryKR); got != "review_kb_kr" {
		t.Fatalf("name = %s", got)
	}
	if got := z.CollectionName(models.CountryUS); got != "review_kb_us" {
		t.Fatalf("name = %s", got)
	}
}

func TestEntriesFromColumns_OrdersBySeq(t *testing.T) {
	cols := []entity.Column{
		entity.NewColumnInt64("seq", []int64{1, 0}),
		entity.NewColumnVarChar("chunk_id", []string{"us_main_1", "us_main_0"}),
		entity.NewColumnVarChar("text", []string{"second", "first"}),
		entity.NewColumnVarChar("source_url", []string{"https://kb/us", "https://kb/us"}),
		entity.NewColumnVarChar("doc_type", []string{"main", "main"}),
		entity.NewColumnFloatVector("embedding", 2, [][]float32{{0, 1}, {1, 0}}),
	}

	entries, err := entriesFromColumns(cols, models.CountryUS)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Chunk.ChunkID != "us_main_0" || entries[0].Chunk.Text != "first" || entries[0].Embedding[0] != 1 {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Chunk.Country != models.CountryUS {
		t.Fatalf("country = %s", entries[1].Chunk.Country)
	}
}

func TestEntriesFromColumns_Ragged(t *testing.T) {
	cols := []entity.Column{
		entity.NewColumnInt64("seq", []int64{0, 1}),
		entity.NewColumnVarChar("chunk_id", []string{"only-one"}),
	}
	if _, err := entriesFromColumns(cols, models.CountryKR); err == nil {
		t.Fatal("expected ragged column error")
	}
}
