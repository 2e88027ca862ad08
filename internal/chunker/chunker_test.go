package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/review-agent/backend/internal/storage/models"
)

func sampleText() string {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("포인트 적립은 광고 시청 후 최대 24시간이 걸릴 수 있습니다. ")
		if i%5 == 4 {
			b.WriteString("\n\n")
		} else if i%3 == 2 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func reconstruct(t *testing.T, segments []Segment) string {
	t.Helper()
	var out []rune
	prevEnd := 0
	for i, seg := range segments {
		if seg.Start > prevEnd {
			t.Fatalf("segment %d leaves a gap: start %d > previous end %d", i, seg.Start, prevEnd)
		}
		runes := []rune(seg.Text)
		out = append(out, runes[prevEnd-seg.Start:]...)
		prevEnd = seg.End
	}
	return string(out)
}

func TestSplit_Reconstructs(t *testing.T) {
	text := sampleText()
	segments := New(800, 100).Split(text)
	if len(segments) < 2 {
		t.Fatalf("expected several segments, got %d", len(segments))
	}
	if got := reconstruct(t, segments); got != text {
		t.Fatal("segments do not reconstruct the source text")
	}
}

func TestSplit_SegmentsAreExactSubstrings(t *testing.T) {
	text := sampleText()
	runes := []rune(text)
	for i, seg := range New(800, 100).Split(text) {
		if string(runes[seg.Start:seg.End]) != seg.Text {
			t.Fatalf("segment %d text does not match its span", i)
		}
		if n := utf8.RuneCountInString(seg.Text); n > 800 {
			t.Fatalf("segment %d has %d runes", i, n)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := sampleText()
	c := New(800, 100)
	a, b := c.Split(text), c.Split(text)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("segment %d differs between runs", i)
		}
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	text := strings.Repeat("a", 500) + "\n\n" + strings.Repeat("b b ", 200)
	segments := New(800, 100).Split(text)
	if !strings.HasSuffix(segments[0].Text, "\n\n") {
		t.Fatalf("first segment should end at the paragraph break, ends with %q",
			segments[0].Text[len(segments[0].Text)-5:])
	}
	if segments[0].End != 502 {
		t.Fatalf("first segment end = %d, want 502", segments[0].End)
	}
}

func TestSplit_HardCutWithoutSeparators(t *testing.T) {
	segments := New(800, 100).Split(strings.Repeat("x", 2000))
	want := [][2]int{{0, 800}, {700, 1500}, {1400, 2000}}
	if len(segments) != len(want) {
		t.Fatalf("got %d segments, want %d", len(segments), len(want))
	}
	for i, w := range want {
		if segments[i].Start != w[0] || segments[i].End != w[1] {
			t.Errorf("segment %d = [%d,%d), want [%d,%d)", i, segments[i].Start, segments[i].End, w[0], w[1])
		}
	}
}

func TestSplit_EmptyAndShort(t *testing.T) {
	c := New(800, 100)
	for _, text := range []string{"", "   ", "\n\n\t"} {
		if got := c.Split(text); len(got) != 0 {
			t.Errorf("Split(%q) = %d segments, want 0", text, len(got))
		}
	}
	got := c.Split("짧은 문서")
	if len(got) != 1 || got[0].Text != "짧은 문서" {
		t.Fatalf("short text = %+v", got)
	}
}

func TestNew_ClampsOverlap(t *testing.T) {
	c := New(100, 300)
	if c.Overlap() >= c.Size() {
		t.Fatalf("overlap %d not below size %d", c.Overlap(), c.Size())
	}
	if d := New(0, 0); d.Size() != DefaultSize {
		t.Fatalf("size = %d, want default", d.Size())
	}
}

func TestChunk_IDsAndMetadata(t *testing.T) {
	page := models.Page{
		URL:     "https://docs.example.com/kr/faq",
		Country: models.CountryKR,
		DocType: "sub_3",
		Text:    strings.Repeat("가나다라 ", 400),
	}
	chunks := New(800, 100).Chunk(page)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if want := ChunkID(models.CountryKR, "sub_3", i); ch.ChunkID != want {
			t.Errorf("chunk %d id = %s, want %s", i, ch.ChunkID, want)
		}
		if ch.SourceURL != page.URL || ch.Country != models.CountryKR || ch.DocType != "sub_3" {
			t.Errorf("chunk %d metadata = %+v", i, ch)
		}
	}
	if chunks[0].ChunkID != "kr_sub_3_0" {
		t.Fatalf("first id = %s", chunks[0].ChunkID)
	}
}

func TestChunkPages_KeepsPageOrder(t *testing.T) {
	pages := []models.Page{
		{URL: "https://a", Country: models.CountryUS, DocType: "main", Text: "first page"},
		{URL: "https://b", Country: models.CountryUS, DocType: "sub_1", Text: "second page"},
		{URL: "https://c", Country: models.CountryUS, DocType: "sub_2", Text: "  "},
	}
	chunks := New(800, 100).ChunkPages(pages)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].ChunkID != "us_main_0" || chunks[1].ChunkID != "us_sub_1_0" {
		t.Fatalf("ids = %s, %s", chunks[0].ChunkID, chunks[1].ChunkID)
	}
}
