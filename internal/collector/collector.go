package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/review-agent/backend/internal/metrics"
	"github.com/review-agent/backend/internal/storage/models"
	"github.com/review-agent/backend/pkg/logger"
)

const (
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultMaxSubPages = 10
	DefaultTimeout     = 30 * time.Second

	maxBodyBytes = 10 << 20
)

var skipMarkers = []string{"#", "javascript:", "mailto:", "tel:"}

// Fetcher returns the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(body), nil
}

type Collector struct {
	fetcher     Fetcher
	maxSubPages int
}

func New(fetcher Fetcher, maxSubPages int) *Collector {
	if maxSubPages < 0 {
		maxSubPages = DefaultMaxSubPages
	}
	return &Collector{fetcher: fetcher, maxSubPages: maxSubPages}
}

// Collect crawls each country's seed page and up to maxSubPages in-domain
// links found on it. Countries are visited in models.Countries order.
// Pages that fail to fetch, parse or yield text are skipped.
func (c *Collector) Collect(ctx context.Context, seeds map[models.Country]string) []models.Page {
	var pages []models.Page
	for _, country := range models.Countries {
		seed, ok := seeds[country]
		if !ok || seed == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		pages = append(pages, c.CollectCountry(ctx, country, seed)...)
	}
	return pages
}

func (c *Collector) CollectCountry(ctx context.Context, country models.Country, seed string) []models.Page {
	logger.Info("Collecting knowledge pages", zap.String("country", string(country)), zap.String("url", seed))

	var pages []models.Page

	doc, err := c.fetchDocument(ctx, seed)
	if err != nil {
		c.recordFailure(country, seed, err)
		return nil
	}

	links := DiscoverLinks(doc, seed)
	logger.Info("Sub pages discovered", zap.String("country", string(country)), zap.Int("links", len(links)))

	if text := ExtractText(doc); text != "" {
		pages = append(pages, models.Page{URL: seed, Country: country, DocType: "main", Text: text})
		metrics.PagesFetched.WithLabelValues(string(country), "ok").Inc()
	} else {
		c.recordFailure(country, seed, fmt.Errorf("no text extracted"))
	}

	if len(links) > c.maxSubPages {
		links = links[:c.maxSubPages]
	}
	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		sub, err := c.fetchDocument(ctx, link)
		if err != nil {
			c.recordFailure(country, link, err)
			continue
		}
		text := ExtractText(sub)
		if text == "" {
			c.recordFailure(country, link, fmt.Errorf("no text extracted"))
			continue
		}
		pages = append(pages, models.Page{
			URL:     link,
			Country: country,
			DocType: fmt.Sprintf("sub_%d", i+1),
			Text:    text,
		})
		metrics.PagesFetched.WithLabelValues(string(country), "ok").Inc()
	}

	return pages
}

func (c *Collector) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (c *Collector) recordFailure(country models.Country, pageURL string, err error) {
	metrics.PagesFetched.WithLabelValues(string(country), "error").Inc()
	logger.Warn("Skipping knowledge page",
		zap.String("country", string(country)),
		zap.String("url", pageURL),
		zap.Error(err),
	)
}

// ExtractText strips page chrome and returns the remaining text with every
// line trimmed and blank lines dropped.
func ExtractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header").Remove()

	raw := doc.Text()
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// DiscoverLinks returns absolute http(s) links on the seed's host in
// discovery order, without duplicates and without the seed itself.
func DiscoverLinks(doc *goquery.Document, seed string) []string {
	base, err := url.Parse(seed)
	if err != nil {
		return nil
	}

	seen := map[string]bool{seed: true}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		if abs.Host != base.Host {
			return
		}
		full := abs.String()
		for _, marker := range skipMarkers {
			if strings.Contains(full, marker) || strings.Contains(href, marker) {
				return
			}
		}
		if seen[full] {
			return
		}
		seen[full] = true
		links = append(links, full)
	})
	return links
}
