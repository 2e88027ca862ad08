package responder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/review-agent/backend/internal/llm"
	"github.com/review-agent/backend/internal/storage/models"
)

type fakeRetriever struct {
	chunks  []models.KnowledgeChunk
	country models.Country
	k       int
}

func (f *fakeRetriever) Search(_ context.Context, _ string, country models.Country, k int) []models.KnowledgeChunk {
	f.country = country
	f.k = k
	return f.chunks
}

type fakeCompleter struct {
	content string
	err     error
	req     llm.CompletionRequest
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

func newGenerator(r Retriever, c Completer) *Generator {
	g := New(r, c, DefaultLimits(), DefaultTemperature)
	g.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func krReview() models.Review {
	return models.Review{
		ID:       "kr_001",
		Author:   "김철수",
		Rating:   2,
		Content:  "포인트가 안 들어와요",
		Country:  models.CountryKR,
		Platform: models.PlatformGooglePlay,
	}
}

func TestGenerate_KRPromptAndSources(t *testing.T) {
	retriever := &fakeRetriever{chunks: []models.KnowledgeChunk{
		{ChunkID: "kr_main_0", Text: "포인트는 24시간 내 적립됩니다", SourceURL: "https://kb/kr"},
		{ChunkID: "kr_sub_1_0", Text: "광고 시청 후 포인트 지급", SourceURL: "https://kb/kr/ads"},
	}}
	completer := &fakeCompleter{content: "  안녕하세요, 머니워크 운영팀입니다. 불편을 드려 죄송합니다. **앱 내 1:1 문의**를 남겨주세요.  "}

	resp := newGenerator(retriever, completer).Generate(context.Background(), krReview(), models.CategoryPoints)

	if retriever.country != models.CountryKR || retriever.k != 3 {
		t.Fatalf("search called with %s k=%d", retriever.country, retriever.k)
	}
	if !strings.Contains(completer.req.SystemPrompt, "문서 1: 포인트는 24시간 내 적립됩니다\n\n문서 2: 광고 시청 후 포인트 지급") {
		t.Fatalf("knowledge context not rendered: %s", completer.req.SystemPrompt)
	}
	if !strings.Contains(completer.req.SystemPrompt, "350자 이내") {
		t.Fatal("max length not rendered into the prompt")
	}
	if !strings.Contains(completer.req.UserPrompt, "작성자: 김철수") || !strings.Contains(completer.req.UserPrompt, "포인트_관련") {
		t.Fatalf("user prompt = %s", completer.req.UserPrompt)
	}
	if completer.req.Temperature != DefaultTemperature {
		t.Fatalf("temperature = %v", completer.req.Temperature)
	}

	if strings.HasPrefix(resp.ResponseText, " ") || strings.HasSuffix(resp.ResponseText, " ") {
		t.Fatal("response should be trimmed")
	}
	if len(resp.UsedSources) != 2 || resp.UsedSources[0] != "https://kb/kr" || resp.UsedSources[1] != "https://kb/kr/ads" {
		t.Fatalf("sources = %v", resp.UsedSources)
	}
	if resp.ReviewID != "kr_001" || resp.Country != models.CountryKR || resp.Platform != models.PlatformGooglePlay {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGenerate_USTemplateForUS(t *testing.T) {
	completer := &fakeCompleter{content: "Hi John, thanks for reaching out."}
	review := models.Review{ID: "us_001", Author: "John", Content: "VoiceOver is hard", Country: models.CountryUS, Platform: models.PlatformAppStore}

	newGenerator(&fakeRetriever{}, completer).Generate(context.Background(), review, models.CategoryAccessibility)

	if !strings.Contains(completer.req.SystemPrompt, "in-app Help Center") {
		t.Fatal("US template not used")
	}
	if !strings.Contains(completer.req.SystemPrompt, "within 500 characters") {
		t.Fatal("app store limit not rendered")
	}
	if !strings.Contains(completer.req.UserPrompt, "Author: John") {
		t.Fatalf("user prompt = %s", completer.req.UserPrompt)
	}
}

func TestGenerate_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		completer *fakeCompleter
		review    models.Review
		want      string
	}{
		{"kr error", &fakeCompleter{err: errors.New("503")}, krReview(), "1:1 문의"},
		{"kr empty", &fakeCompleter{content: "   "}, krReview(), "1:1 문의"},
		{"us error", &fakeCompleter{err: errors.New("timeout")},
			models.Review{ID: "us", Content: "bad", Country: models.CountryUS, Platform: models.PlatformAppStore}, "in-app Help Center"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retriever := &fakeRetriever{chunks: []models.KnowledgeChunk{{SourceURL: "https://kb"}}}
			resp := newGenerator(retriever, tt.completer).Generate(context.Background(), tt.review, models.CategoryOther)
			if !strings.Contains(resp.ResponseText, tt.want) {
				t.Fatalf("fallback = %q, want it to mention %q", resp.ResponseText, tt.want)
			}
			if resp.UsedSources == nil || len(resp.UsedSources) != 0 {
				t.Fatalf("fallback sources = %v, want empty", resp.UsedSources)
			}
			if resp.ReviewID != tt.review.ID {
				t.Fatalf("review id = %s", resp.ReviewID)
			}
		})
	}
}

func TestGenerate_LengthContract(t *testing.T) {
	long := strings.Repeat("포인트 적립이 지연되어 불편을 드려 죄송합니다. ", 40)
	for _, platform := range []models.Platform{models.PlatformGooglePlay, models.PlatformAppStore} {
		review := krReview()
		review.Platform = platform
		resp := newGenerator(&fakeRetriever{}, &fakeCompleter{content: long}).Generate(context.Background(), review, models.CategoryPoints)

		max := DefaultLimits().For(platform)
		if n := utf8.RuneCountInString(resp.ResponseText); n == 0 || n > max {
			t.Fatalf("%s: length %d outside (0, %d]", platform, n, max)
		}
	}
}

func TestLimitsFor(t *testing.T) {
	l := DefaultLimits()
	if l.For(models.PlatformGooglePlay) != 350 || l.For(models.PlatformAppStore) != 500 {
		t.Fatal("platform limits changed")
	}
	if l.For("web") != 350 {
		t.Fatalf("default = %d", l.For("web"))
	}
	if (Limits{}).For(models.PlatformAppStore) != DefaultMaxLength {
		t.Fatal("zero limits should fall back to the default length")
	}
}

func TestSanitizeAuthor(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"김철수":          "김철수",
		"John":         "John",
		"0123456789":   "0123456789",
		"01234567890":  "",
		"john@example": "",
		"#1 fan":       "",
		"100%":         "",
		"$money":       "",
		"가나다라마바사아자차카":  "",
	}
	for in, want := range tests {
		if got := sanitizeAuthor(in); got != want {
			t.Errorf("sanitizeAuthor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	t.Run("short text untouched", func(t *testing.T) {
		got, mode := truncate("Hi there.", 350)
		if got != "Hi there." || mode != truncateNone {
			t.Fatalf("got %q, %q", got, mode)
		}
	})

	t.Run("sentence boundary", func(t *testing.T) {
		text := strings.Repeat("Thanks for the detailed feedback. ", 20)
		got, mode := truncate(text, 350)
		if mode != truncateSentence {
			t.Fatalf("mode = %q", mode)
		}
		if n := utf8.RuneCountInString(got); n > 340 {
			t.Fatalf("length %d exceeds max-10", n)
		}
		if !strings.HasSuffix(got, ".") {
			t.Fatalf("should end on a sentence: %q", got)
		}
	})

	t.Run("hard cut without punctuation", func(t *testing.T) {
		got, mode := truncate(strings.Repeat("가", 400), 350)
		if mode != truncateHard {
			t.Fatalf("mode = %q", mode)
		}
		if got != strings.Repeat("가", 340)+"..." {
			t.Fatalf("hard cut = %d runes", utf8.RuneCountInString(got))
		}
	})

	t.Run("first sentence too long", func(t *testing.T) {
		text := strings.Repeat("a", 345) + ". Short one."
		got, mode := truncate(text, 350)
		if mode != truncateHard || utf8.RuneCountInString(got) != 343 {
			t.Fatalf("got %d runes, mode %q", utf8.RuneCountInString(got), mode)
		}
	})
}

func TestPunctuationBoundaries(t *testing.T) {
	got := punctuationBoundaries("안녕하세요. 감사합니다!\n문의 주세요")
	want := []int{6, 13}
	if len(got) != len(want) {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bounds = %v, want %v", got, want)
		}
	}
}
