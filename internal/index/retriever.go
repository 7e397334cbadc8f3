package index

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/document"
	"github.com/ChamsBouzaiene/semdex/internal/embed"
)

// SearchType selects the ranking strategy of a Retriever.
type SearchType string

const (
	// SearchSimilarity ranks by cosine similarity to the query.
	SearchSimilarity SearchType = "similarity"
	// SearchMMR ranks by maximal marginal relevance, trading relevance
	// against redundancy among selected results.
	SearchMMR SearchType = "mmr"
	// SearchHybrid fuses keyword (BM25) and vector rankings with
	// reciprocal rank fusion.
	SearchHybrid SearchType = "hybrid"
)

// ParseSearchType validates a search type string.
func ParseSearchType(s string) (SearchType, error) {
	switch SearchType(s) {
	case SearchSimilarity, SearchMMR, SearchHybrid:
		return SearchType(s), nil
	default:
		return "", fmt.Errorf("unknown search type %q (want similarity, mmr, or hybrid)", s)
	}
}

// Retriever defaults.
const (
	DefaultTopK   = 8
	DefaultFetchK = 20
	DefaultLambda = 0.5

	// rrfOffset dampens the contribution of lower ranks when fusing
	// keyword and vector result lists.
	rrfOffset = 60.0
	// hybridDepth is how deep each ranking is consulted before fusion.
	hybridDepth = 100
)

// RetrieverOptions tune a Retriever. Zero values take the defaults above;
// Lambda is a pointer because 0 (pure diversity) is a legal setting and
// must be distinguishable from unset.
type RetrieverOptions struct {
	TopK   int      // result count bound (k)
	FetchK int      // MMR candidate pool size
	Lambda *float64 // MMR relevance/diversity weight in [0,1], nil for default
}

// Retriever binds a built index to an embedder and a search strategy,
// answering text queries with ranked chunks.
type Retriever struct {
	index      *Index
	keyword    *KeywordIndex
	embedder   embed.Embedder
	searchType SearchType
	topK       int
	fetchK     int
	lambda     float64
	logger     *zap.Logger
}

// NewRetriever creates a retriever over ix. The hybrid search type builds
// an in-memory keyword index over the chunks at construction.
func NewRetriever(ix *Index, embedder embed.Embedder, searchType SearchType, opts RetrieverOptions, logger *zap.Logger) (*Retriever, error) {
	if ix == nil {
		return nil, fmt.Errorf("index is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.FetchK <= 0 {
		opts.FetchK = DefaultFetchK
	}
	lambda := DefaultLambda
	if opts.Lambda != nil {
		if *opts.Lambda < 0 || *opts.Lambda > 1 {
			return nil, fmt.Errorf("lambda must be in [0, 1], got %v", *opts.Lambda)
		}
		lambda = *opts.Lambda
	}

	r := &Retriever{
		index:      ix,
		embedder:   embedder,
		searchType: searchType,
		topK:       opts.TopK,
		fetchK:     opts.FetchK,
		lambda:     lambda,
		logger:     logger,
	}

	if searchType == SearchHybrid {
		keyword, err := NewKeywordIndex(ix)
		if err != nil {
			return nil, fmt.Errorf("failed to build keyword index: %w", err)
		}
		r.keyword = keyword
	}

	return r, nil
}

// Retrieve embeds the query and returns the most relevant chunks under
// the retriever's search strategy, best first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]document.Chunk, error) {
	queryVector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	switch r.searchType {
	case SearchMMR:
		return r.index.MMRSearch(queryVector, r.topK, r.fetchK, r.lambda), nil
	case SearchHybrid:
		return r.hybridSearch(query, queryVector)
	default:
		return r.index.SimilaritySearch(queryVector, r.topK), nil
	}
}

// hybridSearch fuses the keyword and vector rankings with reciprocal
// rank fusion, then returns the top k fused chunks.
func (r *Retriever) hybridSearch(query string, queryVector []float32) ([]document.Chunk, error) {
	vecRanked := r.index.rank(queryVector)
	if len(vecRanked) > hybridDepth {
		vecRanked = vecRanked[:hybridDepth]
	}

	kwRanked, err := r.keyword.Search(query, hybridDepth)
	if err != nil {
		// Degrade to vector-only rather than failing the query.
		r.logger.Warn("keyword search failed, using vector ranking only", zap.Error(err))
		kwRanked = nil
	}

	fused := make(map[int]float64)
	for rank, s := range vecRanked {
		fused[s.pos] += 1.0 / (rrfOffset + float64(rank+1))
	}
	for rank, pos := range kwRanked {
		fused[pos] += 1.0 / (rrfOffset + float64(rank+1))
	}

	positions := make([]int, 0, len(fused))
	for pos := range fused {
		positions = append(positions, pos)
	}
	// Sort by fused score, breaking ties by index position so repeated
	// queries return identical orderings.
	sort.Slice(positions, func(a, b int) bool {
		if fused[positions[a]] != fused[positions[b]] {
			return fused[positions[a]] > fused[positions[b]]
		}
		return positions[a] < positions[b]
	})

	if len(positions) > r.topK {
		positions = positions[:r.topK]
	}

	chunks := make([]document.Chunk, len(positions))
	for i, pos := range positions {
		chunks[i] = r.index.Chunk(pos)
	}
	return chunks, nil
}

// Close releases retriever resources (the keyword index, when present).
func (r *Retriever) Close() error {
	if r.keyword != nil {
		return r.keyword.Close()
	}
	return nil
}

// SearchType returns the retriever's configured strategy.
func (r *Retriever) SearchType() SearchType {
	return r.searchType
}
