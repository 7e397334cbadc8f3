package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/embed"
	"github.com/ChamsBouzaiene/semdex/internal/index"
	"github.com/ChamsBouzaiene/semdex/internal/pipeline"
	"github.com/ChamsBouzaiene/semdex/internal/splitter"
)

func main() {
	// Load .env if present, same precedence as the process environment.
	_ = godotenv.Load()

	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("semdex: %v", err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("semdex", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a JSON config file")
	docPath := fs.String("path", "", "Document root to index (default: current directory)")
	docGlob := fs.String("glob", "", "Glob pattern for candidate files")
	suffixes := fs.String("suffixes", "", "Comma-separated list of allowed file extensions")
	language := fs.String("language", "", "Splitter language (go, python, markdown, ...)")
	query := fs.String("query", "", "Query to run against the built index")
	topK := fs.Int("k", 0, "Number of results to return")
	searchType := fs.String("search", "", "Search type: similarity, mmr, or hybrid")
	noCache := fs.Bool("no-cache", false, "Bypass the embedding cache entirely")
	cacheDir := fs.String("cache-dir", "", "Embedding cache directory")
	namespace := fs.String("namespace", "", "Cache namespace for this corpus")
	watch := fs.Bool("watch", false, "Keep running and re-index when documents change")
	verbose := fs.Bool("v", false, "Verbose logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := buildConfig(*configPath, func(cfg *pipeline.Config) {
		if *docPath != "" {
			cfg.Path = *docPath
		}
		if *docGlob != "" {
			cfg.Glob = *docGlob
		}
		if *suffixes != "" {
			cfg.Suffixes = splitList(*suffixes)
		}
		if *language != "" {
			cfg.Language = splitter.Language(*language)
		}
		if *topK > 0 {
			cfg.SearchKwargs.K = *topK
		}
		if *searchType != "" {
			cfg.SearchType = *searchType
		}
		if *noCache {
			cfg.UseCache = false
		}
		if *cacheDir != "" {
			cfg.CacheDir = *cacheDir
		}
		if *namespace != "" {
			cfg.Namespace = *namespace
		}
	})
	if err != nil {
		return err
	}

	embedder, err := newEmbedderFromEnv()
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, embedder, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		err := p.Watch(ctx, func(r *index.Retriever) {
			if *query != "" {
				if err := runQuery(ctx, r, *query); err != nil {
					logger.Error("query failed", zap.Error(err))
				}
			}
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	retriever, err := p.Run(ctx)
	if err != nil {
		return err
	}
	defer retriever.Close()

	if *query == "" {
		fmt.Println("index built; pass -query to search it")
		return nil
	}
	return runQuery(ctx, retriever, *query)
}

// buildConfig loads the file config (or the defaults) and applies flag
// overrides on top.
func buildConfig(path string, override func(*pipeline.Config)) (pipeline.Config, error) {
	cfg := pipeline.Default()
	if path != "" {
		loaded, err := pipeline.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	override(&cfg)
	return cfg, cfg.Validate()
}

// newEmbedderFromEnv builds the embedding client from the environment.
func newEmbedderFromEnv() (embed.Embedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return embed.NewOpenAIEmbedder(
		apiKey,
		os.Getenv("OPENAI_EMBED_MODEL"),
		os.Getenv("OPENAI_BASE_URL"),
		0,
	)
}

func runQuery(ctx context.Context, r *index.Retriever, query string) error {
	chunks, err := r.Retrieve(ctx, query)
	if err != nil {
		return err
	}

	for i, chunk := range chunks {
		fmt.Printf("--- %d. %s\n", i+1, chunk.Source())
		fmt.Println(snippet(chunk.Content, 12))
	}
	if len(chunks) == 0 {
		fmt.Println("no results")
	}
	return nil
}

// snippet returns the first n lines of text for display.
func snippet(text string, n int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}
