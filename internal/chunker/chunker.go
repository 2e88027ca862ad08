package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/review-agent/backend/internal/storage/models"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

var separators = []string{"\n\n", "\n", " "}

// Segment is a span of the source text. Start and End are rune offsets.
type Segment struct {
	Text  string
	Start int
	End   int
}

type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. Non-positive sizes fall back to the defaults and
// the overlap is clamped below the size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into overlapping segments of at most Size runes. Each
// segment is an exact substring of text.
func (c *Chunker) Split(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)
	var segments []Segment

	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakPoint(runes, start, end)
		}

		segments = append(segments, Segment{
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
		})
		if end == n {
			break
		}

		next := end - c.overlap
		for i := next; i < end; i++ {
			if unicode.IsSpace(runes[i]) {
				next = i + 1
				break
			}
		}
		start = next
	}

	return segments
}

// breakPoint returns the end offset for a window [start, limit). The cut
// lands after the last separator that leaves more than overlap runes in
// the window, trying separators in order of preference.
func (c *Chunker) breakPoint(runes []rune, start, limit int) int {
	floor := start + c.overlap
	for _, sep := range separators {
		sr := []rune(sep)
		for i := limit - len(sr); i > floor; i-- {
			if matchAt(runes, i, sr) {
				return i + len(sr)
			}
		}
	}
	return limit
}

func matchAt(runes []rune, at int, sep []rune) bool {
	if at < 0 || at+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}

// Chunk splits one page into knowledge chunks numbered from zero.
func (c *Chunker) Chunk(page models.Page) []models.KnowledgeChunk {
	segments := c.Split(page.Text)
	chunks := make([]models.KnowledgeChunk, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, models.KnowledgeChunk{
			ChunkID:   ChunkID(page.Country, page.DocType, i),
			Text:      seg.Text,
			SourceURL: page.URL,
			Country:   page.Country,
			DocType:   page.DocType,
		})
	}
	return chunks
}

func (c *Chunker) ChunkPages(pages []models.Page) []models.KnowledgeChunk {
	var all []models.KnowledgeChunk
	for _, p := range pages {
		all = append(all, c.Chunk(p)...)
	}
	return all
}

func ChunkID(country models.Country, docType string, index int) string {
	return fmt.Sprintf("%s_%s_%d", country.Key(), docType, index)
}
