package redis

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/review-agent/backend/internal/storage/models"
)

func TestEncodeDecodeEntries(t *testing.T) {
	entries := map[string]models.CacheEntry{
		"fp1": {
			ReviewID:     "kr_001",
			ResponseText: "안녕하세요 고객님",
			GeneratedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			Country:      models.CountryKR,
			Platform:     models.PlatformGooglePlay,
			UsedSources:  []string{"https://docs.example.com/kr"},
			Category:     models.CategoryPoints,
		},
	}

	fields, err := encodeEntries(entries)
	if err != nil {
		t.Fatal(err)
	}
	raw := map[string]string{"broken": "{not json"}
	for k, v := range fields {
		raw[k] = v.(string)
	}

	got, err := decodeEntries(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d entries, want the corrupt one skipped", len(got))
	}
	entry := got["fp1"]
	if entry.ResponseText != "안녕하세요 고객님" || entry.Category != models.CategoryPoints {
		t.Fatalf("entry = %+v", entry)
	}
	if !entry.GeneratedAt.Equal(entries["fp1"].GeneratedAt) {
		t.Fatalf("generated_at = %v", entry.GeneratedAt)
	}
}

func TestDecodeEntries_NilSourcesBecomeEmpty(t *testing.T) {
	got, _ := decodeEntries(map[string]string{"fp": `{"review_id":"x","response_text":"hi"}`})
	if got["fp"].UsedSources == nil {
		t.Fatal("used_sources should decode to an empty slice")
	}
}

// TestResponseBackend_Live runs against a real server when REDIS_TEST_ADDR
// (host:port) is set.
func TestResponseBackend_Live(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	host, portStr, _ := strings.Cut(addr, ":")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("bad REDIS_TEST_ADDR: %v", err)
	}

	client, err := NewClient(host, port, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	ctx := context.Background()
	backend := NewResponseBackend(client, "reviewbot:test:"+strconv.FormatInt(time.Now().UnixNano(), 10))
	defer backend.Clear(ctx)

	entries := map[string]models.CacheEntry{
		"a": {ReviewID: "1", ResponseText: "one", UsedSources: []string{}},
		"b": {ReviewID: "2", ResponseText: "two", UsedSources: []string{"u"}},
	}
	if err := backend.Save(ctx, entries); err != nil {
		t.Fatal(err)
	}
	if err := backend.Save(ctx, map[string]models.CacheEntry{"b": entries["b"]}); err != nil {
		t.Fatal(err)
	}
	got, err := backend.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["b"].ResponseText != "two" {
		t.Fatalf("save should overwrite the whole hash, got %+v", got)
	}

	if _, err := client.GetEmbedding(ctx, "missing-"+backend.key); !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}
