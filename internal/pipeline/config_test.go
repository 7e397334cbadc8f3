package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChamsBouzaiene/semdex/internal/splitter"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.ChunkSize != 2000 || cfg.ChunkOverlap != 200 {
		t.Errorf("default chunking = %d/%d, want 2000/200", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.SearchType != "mmr" {
		t.Errorf("default search type = %q, want mmr", cfg.SearchType)
	}
	if cfg.SearchKwargs.K != 8 {
		t.Errorf("default k = %d, want 8", cfg.SearchKwargs.K)
	}
	if !cfg.UseCache {
		t.Error("caching should be on by default")
	}
	if cfg.Namespace != "cache_embeddings" {
		t.Errorf("default namespace = %q", cfg.Namespace)
	}
}

func TestDefaultConfigIsFresh(t *testing.T) {
	a := Default()
	a.Suffixes[0] = ".go"
	a.Exclude = append(a.Exclude, "extra")

	b := Default()
	if b.Suffixes[0] != ".py" {
		t.Error("mutating one default config leaked into another")
	}
	if len(b.Exclude) != 1 {
		t.Errorf("default exclude list has %d entries, want 1", len(b.Exclude))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty path", func(c *Config) { c.Path = "  " }, true},
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }, true},
		{"negative overlap", func(c *Config) { c.ChunkOverlap = -1 }, true},
		{"overlap equals size", func(c *Config) { c.ChunkOverlap = c.ChunkSize }, true},
		{"cache dir missing", func(c *Config) { c.CacheDir = "" }, true},
		{"cache dir unused when cache off", func(c *Config) { c.CacheDir = ""; c.UseCache = false }, false},
		{"bad search type", func(c *Config) { c.SearchType = "fuzzy" }, true},
		{"negative k", func(c *Config) { c.SearchKwargs.K = -1 }, true},
		{"lambda zero", func(c *Config) { zero := 0.0; c.SearchKwargs.Lambda = &zero }, false},
		{"lambda above one", func(c *Config) { big := 1.5; c.SearchKwargs.Lambda = &big }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() should fail")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
				}
			} else if err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "semdex.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigAppliesOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"path": "/data/corpus",
		"suffixes": [".go", ".md"],
		"chunk_size": 1000,
		"search_type": "similarity",
		"search_kwargs": {"k": 4}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Path != "/data/corpus" {
		t.Errorf("path = %q", cfg.Path)
	}
	if cfg.ChunkSize != 1000 {
		t.Errorf("chunk_size = %d, want 1000", cfg.ChunkSize)
	}
	if cfg.SearchKwargs.K != 4 {
		t.Errorf("k = %d, want 4", cfg.SearchKwargs.K)
	}
	// Untouched fields keep their defaults.
	if cfg.ChunkOverlap != 200 {
		t.Errorf("chunk_overlap = %d, want default 200", cfg.ChunkOverlap)
	}
	if cfg.Namespace != "cache_embeddings" {
		t.Errorf("namespace = %q, want default", cfg.Namespace)
	}
	if cfg.Language != splitter.LangPython {
		t.Errorf("language = %q, want default python", cfg.Language)
	}
}

func TestLoadConfigKeepsExplicitLambdaZero(t *testing.T) {
	path := writeConfigFile(t, `{
		"search_type": "mmr",
		"search_kwargs": {"k": 4, "lambda": 0}
	}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.SearchKwargs.Lambda == nil {
		t.Fatal("explicit lambda 0 was dropped as unset")
	}
	if *cfg.SearchKwargs.Lambda != 0 {
		t.Errorf("lambda = %v, want 0", *cfg.SearchKwargs.Lambda)
	}
}

func TestLoadConfigRejectsUnknownKey(t *testing.T) {
	path := writeConfigFile(t, `{"chunk_sizee": 500}`)

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig() should reject unknown keys")
	}
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfigRejectsWrongType(t *testing.T) {
	path := writeConfigFile(t, `{"chunk_size": "big"}`)

	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfigRejectsBadSearchType(t *testing.T) {
	path := writeConfigFile(t, `{"search_type": "fuzzy"}`)

	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() error = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("LoadConfig() on a missing file should fail")
	}
}
