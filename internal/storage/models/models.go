package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidCountry  = errors.New("invalid country")
	ErrInvalidPlatform = errors.New("invalid platform")
)

type Country string

const (
	CountryKR Country = "KR"
	CountryUS Country = "US"
)

// Countries lists every supported country in processing order.
var Countries = []Country{CountryKR, CountryUS}

func ParseCountry(s string) (Country, error) {
	c := Country(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Countries {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCountry, s)
}

// Key is the lowercase form used in chunk ids, index names and config keys.
func (c Country) Key() string {
	return strings.ToLower(string(c))
}

type Platform string

const (
	PlatformGooglePlay Platform = "google_play"
	PlatformAppStore   Platform = "app_store"
)

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformGooglePlay, PlatformAppStore:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, s)
}

type Category string

const (
	CategoryPoints        Category = "포인트_관련"
	CategoryAds           Category = "광고_관련"
	CategoryFeatureBug    Category = "기능_오류"
	CategoryAccessibility Category = "접근성"
	CategoryExchange      Category = "상품_교환"
	CategoryReferral      Category = "친구_초대"
	CategoryUnanswered    Category = "문의_누락"
	CategoryPraise        Category = "칭찬"
	CategoryOther         Category = "기타"
)

// Categories is the closed label set a review can be classified into.
var Categories = []Category{
	CategoryPoints,
	CategoryAds,
	CategoryFeatureBug,
	CategoryAccessibility,
	CategoryExchange,
	CategoryReferral,
	CategoryUnanswered,
	CategoryPraise,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Review struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Country   Country   `json:"country"`
	Platform  Platform  `json:"platform"`
	Category  Category  `json:"category,omitempty"`
}

func (r Review) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("review id is required")
	}
	if strings.TrimSpace(r.Content) == "" {
		return errors.New("review content is required")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return fmt.Errorf("rating must be between 1 and 5, got %d", r.Rating)
	}
	if _, err := ParseCountry(string(r.Country)); err != nil {
		return err
	}
	if _, err := ParsePlatform(string(r.Platform)); err != nil {
		return err
	}
	return nil
}

// Page is the plain text of one crawled knowledge-base page.
type Page struct {
	URL     string
	Country Country
	DocType string
	Text    string
}

type KnowledgeChunk struct {
	ChunkID   string  `json:"chunk_id"`
	Text      string  `json:"text"`
	SourceURL string  `json:"source_url"`
	Country   Country `json:"country"`
	DocType   string  `json:"doc_type"`
}

type ReviewResponse struct {
	ReviewID     string    `json:"review_id"`
	ResponseText string    `json:"response_text"`
	GeneratedAt  time.Time `json:"generated_at"`
	Country      Country   `json:"country"`
	Platform     Platform  `json:"platform"`
	UsedSources  []string  `json:"used_sources"`
}

// CacheEntry is the persisted shape of a cached reply, keyed by fingerprint.
type CacheEntry struct {
	ReviewID     string    `json:"review_id"`
	ResponseText string    `json:"response_text"`
	GeneratedAt  time.Time `json:"generated_at"`
	Country      Country   `json:"country"`
	Platform     Platform  `json:"platform"`
	UsedSources  []string  `json:"used_sources"`
	Category     Category  `json:"category"`
}

func NewCacheEntry(resp ReviewResponse, category Category) CacheEntry {
	sources := make([]string, len(resp.UsedSources))
	copy(sources, resp.UsedSources)
	return CacheEntry{
		ReviewID:     resp.ReviewID,
		ResponseText: resp.ResponseText,
		GeneratedAt:  resp.GeneratedAt,
		Country:      resp.Country,
		Platform:     resp.Platform,
		UsedSources:  sources,
		Category:     category,
	}
}

func (e CacheEntry) Response() ReviewResponse {
	sources := make([]string, len(e.UsedSources))
	copy(sources, e.UsedSources)
	return ReviewResponse{
		ReviewID:     e.ReviewID,
		ResponseText: e.ResponseText,
		GeneratedAt:  e.GeneratedAt,
		Country:      e.Country,
		Platform:     e.Platform,
		UsedSources:  sources,
	}
}

// ResponseRecord is an archived reply as stored in SQLite.
type ResponseRecord struct {
	ID          string
	Fingerprint string
	Response    ReviewResponse
	Category    Category
}

type IndexBuild struct {
	ID      int
	Country Country
	Pages   int
	Chunks  int
	BuiltAt time.Time
}
