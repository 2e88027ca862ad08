package vector

import (
	"math"
	"sort"

	"github.com/review-agent/backend/internal/storage/models"
)

// Entry pairs a chunk with its embedding.
type Entry struct {
	Chunk     models.KnowledgeChunk
	Embedding []float32
}

type Result struct {
	Chunk models.KnowledgeChunk
	Score float64
}

// Index is a flat cosine-similarity index over one country's chunks. It is
// not safe for concurrent mutation; Manager serializes writers.
type Index struct {
	country models.Country
	entries []Entry
}

func NewIndex(country models.Country, entries []Entry) *Index {
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return &Index{country: country, entries: cp}
}

func (i *Index) Country() models.Country { return i.country }

func (i *Index) Len() int { return len(i.entries) }

// Entries returns a copy of the index contents in insertion order.
func (i *Index) Entries() []Entry {
	out := make([]Entry, len(i.entries))
	copy(out, i.entries)
	return out
}

// With returns a new index holding the current entries followed by extra.
func (i *Index) With(extra []Entry) *Index {
	merged := make([]Entry, 0, len(i.entries)+len(extra))
	merged = append(merged, i.entries...)
	merged = append(merged, extra...)
	return &Index{country: i.country, entries: merged}
}

// Search returns the k entries closest to query, best first. Ties keep
// insertion order.
func (i *Index) Search(query []float32, k int) []Result {
	if k <= 0 || len(i.entries) == 0 {
		return nil
	}

	qNorm := norm(query)
	scores := make([]float64, len(i.entries))
	for j, e := range i.entries {
		scores[j] = cosine(query, qNorm, e.Embedding)
	}

	order := make([]int, len(i.entries))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if k > len(order) {
		k = len(order)
	}
	results := make([]Result, 0, k)
	for _, j := range order[:k] {
		results = append(results, Result{Chunk: i.entries[j].Chunk, Score: scores[j]})
	}
	return results
}

func cosine(q []float32, qNorm float64, v []float32) float64 {
	if qNorm == 0 || len(q) != len(v) {
		return math.Inf(-1)
	}
	vNorm := norm(v)
	if vNorm == 0 {
		return math.Inf(-1)
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
