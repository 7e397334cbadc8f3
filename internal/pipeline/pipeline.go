// Package pipeline orchestrates the full run: load documents, split them
// into chunks, embed the chunks through the cache, build the retrieval
// index, and hand back a retriever.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/cache"
	"github.com/ChamsBouzaiene/semdex/internal/document"
	"github.com/ChamsBouzaiene/semdex/internal/embed"
	"github.com/ChamsBouzaiene/semdex/internal/index"
	"github.com/ChamsBouzaiene/semdex/internal/loader"
	"github.com/ChamsBouzaiene/semdex/internal/splitter"
)

// Pipeline runs the load -> split -> embed -> index flow for one corpus.
type Pipeline struct {
	cfg        Config
	underlying embed.Embedder
	logger     *zap.Logger
}

// New creates a pipeline. underlying is the embedding model; when the
// config enables caching it is wrapped with the byte-store-backed cache
// at run time.
func New(cfg Config, underlying embed.Embedder, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if underlying == nil {
		return nil, fmt.Errorf("%w: an embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, underlying: underlying, logger: logger}, nil
}

// LoadDocuments loads the corpus configured for this pipeline.
func (p *Pipeline) LoadDocuments(ctx context.Context) ([]document.Document, error) {
	l, err := loader.New(p.cfg.Path, p.cfg.Glob, p.cfg.Suffixes, p.cfg.Exclude, p.logger)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx)
}

// SplitDocuments splits documents into embedding-ready chunks.
func (p *Pipeline) SplitDocuments(docs []document.Document) ([]document.Chunk, error) {
	s, err := splitter.New(p.cfg.Language, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	chunks := s.Split(docs)
	p.logger.Info("split documents",
		zap.Int("documents", len(docs)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// Embedder returns the embedder a run will use: the underlying model,
// wrapped with the content-addressed cache unless use_cache is off.
func (p *Pipeline) Embedder() (embed.Embedder, error) {
	if !p.cfg.UseCache {
		return p.underlying, nil
	}

	store, err := cache.NewStore(p.cfg.CacheDir, p.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return embed.NewCachedEmbedder(p.underlying, store, p.cfg.Namespace, p.logger)
}

// Run executes the whole pipeline and returns a retriever over the
// resulting index. Loader and configuration failures abort the run;
// per-key cache failures degrade to recomputation inside the embedder.
func (p *Pipeline) Run(ctx context.Context) (*index.Retriever, error) {
	docs, err := p.LoadDocuments(ctx)
	if err != nil {
		return nil, err
	}

	chunks, err := p.SplitDocuments(docs)
	if err != nil {
		return nil, err
	}

	embedder, err := p.Embedder()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	ix, err := index.Build(chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	p.logger.Info("built index", zap.Int("chunks", ix.Len()), zap.Int("dimension", ix.Dimension()))

	if p.cfg.IndexPath != "" {
		if err := p.saveSnapshot(ctx, ix); err != nil {
			// A failed snapshot loses resumability, not correctness.
			p.logger.Warn("failed to persist index snapshot", zap.Error(err))
		}
	}

	searchType, err := index.ParseSearchType(p.cfg.SearchType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return index.NewRetriever(ix, embedder, searchType, index.RetrieverOptions{
		TopK:   p.cfg.SearchKwargs.K,
		FetchK: p.cfg.SearchKwargs.FetchK,
		Lambda: p.cfg.SearchKwargs.Lambda,
	}, p.logger)
}

func (p *Pipeline) saveSnapshot(ctx context.Context, ix *index.Index) error {
	store, err := index.OpenStore(ctx, p.cfg.IndexPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, ix)
}

// Watch runs the pipeline once, then re-runs it whenever documents under
// the configured path change, invoking onUpdate with each fresh
// retriever. It blocks until ctx is cancelled.
func (p *Pipeline) Watch(ctx context.Context, onUpdate func(*index.Retriever)) error {
	retriever, err := p.Run(ctx)
	if err != nil {
		return err
	}
	onUpdate(retriever)

	l, err := loader.New(p.cfg.Path, p.cfg.Glob, p.cfg.Suffixes, p.cfg.Exclude, p.logger)
	if err != nil {
		return err
	}

	rerun := make(chan struct{}, 1)
	watcher, err := loader.NewWatcher(l, func(paths []string) {
		select {
		case rerun <- struct{}{}:
		default:
		}
	}, p.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rerun:
			next, err := p.Run(ctx)
			if err != nil {
				p.logger.Error("pipeline re-run failed", zap.Error(err))
				continue
			}
			// Release the superseded retriever's resources before
			// handing out the replacement.
			if err := retriever.Close(); err != nil {
				p.logger.Warn("failed to close previous retriever", zap.Error(err))
			}
			retriever = next
			onUpdate(retriever)
		}
	}
}
