package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/review-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(filepath.Join(t.TempDir(), "nested", "archive.db"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return c
}

func TestRecordResponse_RoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	generated := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	first := models.ReviewResponse{
		ReviewID:     "kr_001",
		ResponseText: "안녕하세요, 머니워크 운영팀입니다.",
		GeneratedAt:  generated,
		Country:      models.CountryKR,
		Platform:     models.PlatformGooglePlay,
		UsedSources:  []string{"https://kb/b", "https://kb/a", "https://kb/b"},
	}
	second := models.ReviewResponse{
		ReviewID:     "us_001",
		ResponseText: "Hi there",
		GeneratedAt:  generated.Add(time.Minute),
		Country:      models.CountryUS,
		Platform:     models.PlatformAppStore,
		UsedSources:  []string{},
	}

	if err := c.RecordResponse(ctx, "fp1", first, models.CategoryPoints); err != nil {
		t.Fatal(err)
	}
	if err := c.RecordResponse(ctx, "fp2", second, models.CategoryOther); err != nil {
		t.Fatal(err)
	}

	records, err := c.RecentResponses(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].Response.ReviewID != "us_001" || records[1].Response.ReviewID != "kr_001" {
		t.Fatalf("order = %s, %s", records[0].Response.ReviewID, records[1].Response.ReviewID)
	}

	got := records[1]
	if got.Fingerprint != "fp1" || got.Category != models.CategoryPoints || got.ID == "" {
		t.Fatalf("record = %+v", got)
	}
	if !got.Response.GeneratedAt.Equal(generated) {
		t.Fatalf("generated at = %v", got.Response.GeneratedAt)
	}
	want := first.UsedSources
	if len(got.Response.UsedSources) != len(want) {
		t.Fatalf("sources = %v", got.Response.UsedSources)
	}
	for i := range want {
		if got.Response.UsedSources[i] != want[i] {
			t.Fatalf("sources = %v, want %v", got.Response.UsedSources, want)
		}
	}
	if records[0].Response.UsedSources == nil || len(records[0].Response.UsedSources) != 0 {
		t.Fatalf("empty sources = %v", records[0].Response.UsedSources)
	}

	n, err := c.CountResponses(ctx)
	if err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}

	kr, err := c.ResponsesByCountry(ctx, models.CountryKR, 10)
	if err != nil || len(kr) != 1 || kr[0].Response.Country != models.CountryKR {
		t.Fatalf("by country = %+v, %v", kr, err)
	}

	limited, err := c.RecentResponses(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("limited = %d, %v", len(limited), err)
	}
}

func TestIndexBuilds(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	builds, err := c.LastIndexBuilds(ctx)
	if err != nil || len(builds) != 0 {
		t.Fatalf("builds = %v, %v", builds, err)
	}

	for _, b := range []struct {
		country       models.Country
		pages, chunks int
	}{
		{models.CountryKR, 5, 40},
		{models.CountryUS, 3, 20},
		{models.CountryKR, 6, 44},
	} {
		if err := c.RecordIndexBuild(ctx, b.country, b.pages, b.chunks); err != nil {
			t.Fatal(err)
		}
	}

	builds, err = c.LastIndexBuilds(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(builds) != 2 {
		t.Fatalf("builds = %v", builds)
	}
	if kr := builds[models.CountryKR]; kr.Pages != 6 || kr.Chunks != 44 || kr.BuiltAt.IsZero() {
		t.Fatalf("KR build = %+v", kr)
	}
	if us := builds[models.CountryUS]; us.Chunks != 20 {
		t.Fatalf("US build = %+v", us)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	c := newTestClient(t)
	if err := c.InitSchema(); err != nil {
		t.Fatalf("second InitSchema: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}
