package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/review-agent/backend/internal/storage/models"
)

const rootHTML = `<html><head><title>FAQ</title><style>.x{}</style></head>
<body>
<header>Top banner</header>
<nav><a href="/nav-only">Menu</a></nav>
<main>
  <h1>  머니워크 도움말  </h1>

  <p>포인트는 24시간 내 적립됩니다.</p>
  <a href="/a">A</a>
  <a href="/b">B</a>
  <a href="/a">A again</a>
  <a href="/">Home</a>
  <a href="#top">Top</a>
  <a href="mailto:help@example.com">Mail</a>
  <a href="javascript:void(0)">JS</a>
  <a href="https://other.example.com/x">Elsewhere</a>
  <a href="/missing">Missing</a>
  <a href="/empty">Empty</a>
</main>
<script>var tracking = 1;</script>
<footer>Copyright</footer>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, rootHTML)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>Page A body</p></body></html>")
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>Page B body</p></body></html>")
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><script>only()</script></body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollect_CrawlsSeedAndSubPages(t *testing.T) {
	srv := newSite(t)
	c := New(NewHTTPFetcher(5*time.Second, "test-agent"), 10)

	pages := c.Collect(context.Background(), map[models.Country]string{models.CountryKR: srv.URL + "/"})

	if len(pages) != 3 {
		t.Fatalf("got %d pages, want 3: %+v", len(pages), pages)
	}
	if pages[0].DocType != "main" || pages[0].URL != srv.URL+"/" {
		t.Fatalf("first page = %+v", pages[0])
	}
	if pages[1].DocType != "sub_2" || pages[1].URL != srv.URL+"/a" || pages[1].Text != "Page A body" {
		t.Fatalf("second page = %+v", pages[1])
	}
	if pages[2].DocType != "sub_3" || pages[2].URL != srv.URL+"/b" {
		t.Fatalf("third page = %+v", pages[2])
	}
	for _, p := range pages {
		if p.Country != models.CountryKR {
			t.Fatalf("country = %s", p.Country)
		}
	}

	main := pages[0].Text
	for _, gone := range []string{"Top banner", "Menu", "Copyright", "tracking"} {
		if strings.Contains(main, gone) {
			t.Errorf("main text still contains %q", gone)
		}
	}
	if !strings.Contains(main, "머니워크 도움말\n") {
		t.Errorf("heading line not trimmed: %q", main)
	}
	if strings.Contains(main, "\n\n") {
		t.Errorf("blank lines kept: %q", main)
	}
}

func TestCollect_RespectsMaxSubPages(t *testing.T) {
	srv := newSite(t)
	c := New(NewHTTPFetcher(5*time.Second, "test-agent"), 2)

	pages := c.Collect(context.Background(), map[models.Country]string{models.CountryUS: srv.URL + "/"})
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(pages))
	}
	if pages[1].DocType != "sub_2" || pages[1].URL != srv.URL+"/a" {
		t.Fatalf("doc type = %s", pages[1].DocType)
	}
}

type fakeFetcher struct {
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	body, ok := f.pages[pageURL]
	if !ok {
		return "", errors.New("unreachable")
	}
	return body, nil
}

func TestCollect_CountryOrderAndFailures(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://kr.example.com/": "<body>한국어 문서</body>",
		"https://us.example.com/": "<body>English docs</body>",
	}}
	c := New(f, 10)

	pages := c.Collect(context.Background(), map[models.Country]string{
		models.CountryUS: "https://us.example.com/",
		models.CountryKR: "https://kr.example.com/",
	})
	if len(pages) != 2 {
		t.Fatalf("got %d pages", len(pages))
	}
	if pages[0].Country != models.CountryKR || pages[1].Country != models.CountryUS {
		t.Fatalf("countries out of order: %s, %s", pages[0].Country, pages[1].Country)
	}

	f.pages = map[string]string{}
	if got := c.Collect(context.Background(), map[models.Country]string{models.CountryKR: "https://kr.example.com/"}); len(got) != 0 {
		t.Fatalf("unreachable seed produced %d pages", len(got))
	}
}

func TestHTTPFetcher_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(time.Second, "").Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("err = %v, want status 503", err)
	}
}

func TestDiscoverLinks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rootHTML))
	if err != nil {
		t.Fatal(err)
	}
	links := DiscoverLinks(doc, "https://docs.example.com/")
	want := []string{
		"https://docs.example.com/nav-only",
		"https://docs.example.com/a",
		"https://docs.example.com/b",
		"https://docs.example.com/missing",
		"https://docs.example.com/empty",
	}
	if len(links) != len(want) {
		t.Fatalf("links = %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Fatalf("links = %v, want %v", links, want)
		}
	}
}
