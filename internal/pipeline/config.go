package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ChamsBouzaiene/semdex/internal/index"
	"github.com/ChamsBouzaiene/semdex/internal/splitter"
)

// ErrInvalidConfig marks configuration errors; callers can match it with
// errors.Is.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// SearchKwargs tunes the retriever. Lambda is a pointer so an explicit
// 0 (pure-diversity MMR) survives the trip through JSON; nil means use
// the retriever default.
type SearchKwargs struct {
	K      int      `json:"k"`                 // result count bound
	FetchK int      `json:"fetch_k,omitempty"` // MMR candidate pool
	Lambda *float64 `json:"lambda,omitempty"`  // MMR relevance weight
}

// Config holds one pipeline instance's settings. Each instance gets its
// own value (construct with Default and override); configs are never
// shared or mutated after the pipeline is built.
type Config struct {
	Path         string            `json:"path"`
	Glob         string            `json:"glob_rule"`
	Suffixes     []string          `json:"suffixes"`
	Exclude      []string          `json:"exclude"`
	Language     splitter.Language `json:"language"`
	ChunkSize    int               `json:"chunk_size"`
	ChunkOverlap int               `json:"chunk_overlap"`
	CacheDir     string            `json:"cache_dir"`
	Namespace    string            `json:"namespace_cache"`
	SearchType   string            `json:"search_type"`
	SearchKwargs SearchKwargs      `json:"search_kwargs"`
	UseCache     bool              `json:"use_cache"`

	// IndexPath, when set, persists the built index to a sqlite snapshot.
	IndexPath string `json:"index_path,omitempty"`
}

// Default returns a fresh config with the stock settings. Callers get a
// new value every time so overriding one field can never leak into
// another pipeline instance.
func Default() Config {
	return Config{
		Path:         ".",
		Glob:         "**/*",
		Suffixes:     []string{".py"},
		Exclude:      []string{"**/non-utf8-encoding.py"},
		Language:     splitter.LangPython,
		ChunkSize:    2000,
		ChunkOverlap: 200,
		CacheDir:     "cache",
		Namespace:    "cache_embeddings",
		SearchType:   string(index.SearchMMR),
		SearchKwargs: SearchKwargs{K: 8},
		UseCache:     true,
	}
}

// Validate checks the config. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size)", ErrInvalidConfig)
	}
	if c.UseCache && strings.TrimSpace(c.CacheDir) == "" {
		return fmt.Errorf("%w: cache_dir is required when use_cache is on", ErrInvalidConfig)
	}
	if _, err := index.ParseSearchType(c.SearchType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SearchKwargs.K < 0 {
		return fmt.Errorf("%w: search_kwargs.k must not be negative", ErrInvalidConfig)
	}
	if l := c.SearchKwargs.Lambda; l != nil && (*l < 0 || *l > 1) {
		return fmt.Errorf("%w: search_kwargs.lambda must be in [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// configSchema is the JSON schema config files are validated against
// before unmarshalling, so typos and wrong types fail with a clear
// message instead of silently taking defaults.
const configSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"path":            {"type": "string"},
		"glob_rule":       {"type": "string"},
		"suffixes":        {"type": "array", "items": {"type": "string"}},
		"exclude":         {"type": "array", "items": {"type": "string"}},
		"language":        {"type": "string"},
		"chunk_size":      {"type": "integer", "minimum": 1},
		"chunk_overlap":   {"type": "integer", "minimum": 0},
		"cache_dir":       {"type": "string"},
		"namespace_cache": {"type": "string"},
		"search_type":     {"type": "string", "enum": ["similarity", "mmr", "hybrid"]},
		"search_kwargs": {
			"type": "object",
			"additionalProperties": false,
			"properties": {
				"k":       {"type": "integer", "minimum": 1},
				"fetch_k": {"type": "integer", "minimum": 1},
				"lambda":  {"type": "number", "minimum": 0, "maximum": 1}
			}
		},
		"use_cache":  {"type": "boolean"},
		"index_path": {"type": "string"}
	}
}`

// LoadConfig reads a JSON config file, validates it against the schema,
// and applies it over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return cfg, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
