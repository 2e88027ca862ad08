package config

import (
	"strings"
	"testing"
)

func loadForTest(t *testing.T) *Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadForTest(t)

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q, want value from OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	if cfg.Knowledge.ChunkSize != 800 || cfg.Knowledge.ChunkOverlap != 100 {
		t.Errorf("chunking = %d/%d, want 800/100", cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	}
	if cfg.Knowledge.MaxSubPages != 10 {
		t.Errorf("maxSubPages = %d, want 10", cfg.Knowledge.MaxSubPages)
	}
	if got := cfg.Response.MaxLength["google_play"]; got != 350 {
		t.Errorf("google_play max length = %d, want 350", got)
	}
	if got := cfg.Response.MaxLength["app_store"]; got != 500 {
		t.Errorf("app_store max length = %d, want 500", got)
	}
	if _, ok := cfg.Knowledge.Sources["kr"]; !ok {
		t.Errorf("expected a kr knowledge source, got %v", cfg.Knowledge.Sources)
	}
	if cfg.Index.Backend != "sqlite" || cfg.Cache.Backend != "file" {
		t.Errorf("backends = %s/%s, want sqlite/file", cfg.Index.Backend, cfg.Cache.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("REVIEWBOT_INDEX_TOPK", "5")
	t.Setenv("REVIEWBOT_CACHE_BACKEND", "memory")
	cfg := loadForTest(t)

	if cfg.Index.TopK != 5 {
		t.Errorf("topK = %d, want 5", cfg.Index.TopK)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("cache backend = %q, want memory", cfg.Cache.Backend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing api key",
			mutate:  func(c *Config) { c.LLM.APIKey = " " },
			wantErr: "llm.apiKey",
		},
		{
			name:    "overlap not smaller than size",
			mutate:  func(c *Config) { c.Knowledge.ChunkOverlap = c.Knowledge.ChunkSize },
			wantErr: "invalid chunking",
		},
		{
			name:    "unknown index backend",
			mutate:  func(c *Config) { c.Index.Backend = "faiss" },
			wantErr: "unknown index.backend",
		},
		{
			name:    "redis cache without redis",
			mutate:  func(c *Config) { c.Cache.Backend = "redis"; c.Redis.Enabled = false },
			wantErr: "requires redis.enabled",
		},
		{
			name:    "tiny platform limit",
			mutate:  func(c *Config) { c.Response.MaxLength["google_play"] = 5 },
			wantErr: "response.maxLength.google_play",
		},
		{
			name:    "no knowledge sources",
			mutate:  func(c *Config) { c.Knowledge.Sources = nil },
			wantErr: "knowledge.sources",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadForTest(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
