package responder

import (
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

const (
	truncateMargin = 10
	ellipsis       = "..."
)

type truncateMode string

const (
	truncateNone     truncateMode = ""
	truncateSentence truncateMode = "sentence"
	truncateHard     truncateMode = "hard"
)

// truncate shortens text to fit maxLength runes. It keeps whole sentences
// within maxLength-10 runes; when no sentence fits it cuts at maxLength-10
// runes and appends "...".
func truncate(text string, maxLength int) (string, truncateMode) {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text, truncateNone
	}

	limit := maxLength - truncateMargin
	if limit < 1 {
		limit = maxLength - len(ellipsis)
	}
	if limit < 1 {
		return string(runes[:maxLength]), truncateHard
	}

	cut := 0
	for _, b := range sentenceBoundaries(text) {
		if b <= limit && b > cut {
			cut = b
		}
	}
	if cut > 0 {
		if out := strings.TrimSpace(string(runes[:cut])); out != "" {
			return out, truncateSentence
		}
	}

	return string(runes[:limit]) + ellipsis, truncateHard
}

// sentenceBoundaries returns rune offsets just past the end of each
// sentence. The prose segmenter is tried first; the punctuation scan covers
// text it cannot place back into the source.
func sentenceBoundaries(text string) []int {
	if bounds := proseBoundaries(text); len(bounds) > 0 {
		return bounds
	}
	return punctuationBoundaries(text)
}

func proseBoundaries(text string) []int {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return nil
	}

	sentences := doc.Sentences()
	if len(sentences) < 2 {
		return nil
	}

	var bounds []int
	byteOffset := 0
	for _, s := range sentences {
		st := strings.TrimSpace(s.Text)
		if st == "" {
			continue
		}
		at := strings.Index(text[byteOffset:], st)
		if at < 0 {
			return nil
		}
		byteOffset += at + len(st)
		bounds = append(bounds, len([]rune(text[:byteOffset])))
	}
	return bounds
}

func punctuationBoundaries(text string) []int {
	var bounds []int
	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			next := i + 1
			if next == len(runes) || unicode.IsSpace(runes[next]) {
				bounds = append(bounds, next)
			}
		case '\n':
			if i > 0 && (len(bounds) == 0 || bounds[len(bounds)-1] != i) {
				bounds = append(bounds, i)
			}
		}
	}
	return bounds
}
