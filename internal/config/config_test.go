package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadCascadeDefaults(t *testing.T) {
	t.Setenv("VECTOR_HIGH_CONFIDENCE", "")
	t.Setenv("CONFIDENCE_SCORE", "")
	t.Setenv("CACHE_TTL", "")
	t.Setenv("EMBEDDING_CACHE_TTL", "")
	t.Setenv("FALLBACK_MAX_PAGES", "")
	t.Setenv("FALLBACK_TOP_CHUNKS", "")
	t.Setenv("NATS_URL", "")

	cfg := Load()
	if cfg.VectorHighConfidence != 0.70 {
		t.Fatalf("expected default high confidence 0.70, got %v", cfg.VectorHighConfidence)
	}
	if cfg.ConfidenceScore != 30 {
		t.Fatalf("expected default confidence score 30, got %v", cfg.ConfidenceScore)
	}
	if cfg.CacheTTL != time.Hour {
		t.Fatalf("expected default cache ttl 1h, got %v", cfg.CacheTTL)
	}
	if cfg.EmbeddingCacheTTL != 7*24*time.Hour {
		t.Fatalf("expected default embedding cache ttl 7d, got %v", cfg.EmbeddingCacheTTL)
	}
	if cfg.FallbackMaxPages != 5 || cfg.FallbackTopChunks != 10 {
		t.Fatalf("unexpected fallback defaults: pages=%d chunks=%d", cfg.FallbackMaxPages, cfg.FallbackTopChunks)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("expected broker disabled by default, got %q", cfg.NATSURL)
	}
	if !cfg.AutoMigrate {
		t.Fatalf("expected auto migrate enabled by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("VECTOR_HIGH_CONFIDENCE", "0.82")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("SCRAPE_TIMEOUT", "2500ms")
	t.Setenv("API_RATE_LIMIT_RPS", "12.5")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg := Load()
	if cfg.VectorHighConfidence != 0.82 {
		t.Fatalf("expected high confidence override, got %v", cfg.VectorHighConfidence)
	}
	if cfg.CacheTTL != 2*time.Minute {
		t.Fatalf("expected bare seconds ttl, got %v", cfg.CacheTTL)
	}
	if cfg.ScrapeTimeout != 2500*time.Millisecond {
		t.Fatalf("expected duration override, got %v", cfg.ScrapeTimeout)
	}
	if cfg.APIRateLimitRPS != 12.5 {
		t.Fatalf("expected rps override, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.AutoMigrate {
		t.Fatalf("expected auto migrate disabled")
	}
	if cfg.ChunkSize != 1000 {
		t.Fatalf("expected invalid chunk size to fall back to 1000, got %d", cfg.ChunkSize)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	raw := `allowed_urls:
  - url: pubmed.ncbi.nlm.nih.gov
    description: " PubMed "
  - url: "  "
chat_restrictions:
  - Do not give dosing advice.
  - ""
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	want := Seed{
		AllowedURLs:      []SeedURL{{URL: "pubmed.ncbi.nlm.nih.gov", Description: "PubMed"}},
		ChatRestrictions: []string{"Do not give dosing advice."},
	}
	if diff := cmp.Diff(want, seed); diff != "" {
		t.Fatalf("seed mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSeedEmptyPath(t *testing.T) {
	seed, err := LoadSeed("")
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(seed.AllowedURLs) != 0 || len(seed.ChatRestrictions) != 0 {
		t.Fatalf("expected empty seed, got %+v", seed)
	}
}

func TestLoadSeedRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte("allowed_urls: [\n"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := LoadSeed(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
