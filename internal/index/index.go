// Package index stores (chunk, vector) pairs and answers relevance
// queries: pure cosine similarity, maximal-marginal-relevance, and a
// hybrid mode fusing keyword and vector rankings.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/ChamsBouzaiene/semdex/internal/document"
)

// entry is one indexed chunk with its vector and precomputed L2 norm.
type entry struct {
	chunk  document.Chunk
	vector []float32
	norm   float64
}

// Index holds the chunks and vectors of one pipeline run. It is built
// once and queried read-only afterwards; queries are safe to run
// concurrently once building is done.
type Index struct {
	entries   []entry
	dimension int
}

// New creates an empty index.
func New() *Index {
	return &Index{}
}

// Build creates an index from parallel chunk and vector slices.
func Build(chunks []document.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))
	}
	ix := New()
	for i := range chunks {
		if err := ix.Add(chunks[i], vectors[i]); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Add appends one chunk with its vector. All vectors in an index must
// share one dimensionality.
func (ix *Index) Add(chunk document.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("cannot index an empty vector")
	}
	if ix.dimension == 0 {
		ix.dimension = len(vector)
	} else if len(vector) != ix.dimension {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vector), ix.dimension)
	}

	ix.entries = append(ix.entries, entry{
		chunk:  chunk,
		vector: vector,
		norm:   vectorNorm(vector),
	})
	return nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Dimension returns the vector dimensionality, 0 while empty.
func (ix *Index) Dimension() int {
	return ix.dimension
}

// Chunk returns the i-th indexed chunk in insertion order.
func (ix *Index) Chunk(i int) document.Chunk {
	return ix.entries[i].chunk
}

// scored pairs an entry position with its query similarity.
type scored struct {
	pos   int
	score float64
}

// rank scores every entry against query and orders descending. The sort
// is stable over insertion order, so equal scores resolve first-seen
// first and repeated queries return identical rankings.
func (ix *Index) rank(query []float32) []scored {
	queryNorm := vectorNorm(query)

	ranked := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		ranked[i] = scored{pos: i, score: cosine(query, queryNorm, e.vector, e.norm)}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})
	return ranked
}

// SimilaritySearch returns the k chunks most similar to query, most
// relevant first. Fewer than k indexed chunks returns all of them.
func (ix *Index) SimilaritySearch(query []float32, k int) []document.Chunk {
	ranked := ix.rank(query)
	if k > len(ranked) {
		k = len(ranked)
	}
	if k < 0 {
		k = 0
	}

	chunks := make([]document.Chunk, k)
	for i := 0; i < k; i++ {
		chunks[i] = ix.entries[ranked[i].pos].chunk
	}
	return chunks
}

// MMRSearch returns k chunks balancing query relevance against redundancy
// among the already-selected results. Selection runs over the top fetchK
// candidates by similarity; lambda in [0,1] weights relevance (1) against
// diversity (0). Ties keep the earlier candidate.
func (ix *Index) MMRSearch(query []float32, k, fetchK int, lambda float64) []document.Chunk {
	if fetchK < k {
		fetchK = k
	}
	ranked := ix.rank(query)
	if fetchK > len(ranked) {
		fetchK = len(ranked)
	}
	candidates := ranked[:fetchK]

	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return []document.Chunk{}
	}

	selected := make([]int, 0, k)
	chosen := make(map[int]bool, k)

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)

		for _, cand := range candidates {
			if chosen[cand.pos] {
				continue
			}

			redundancy := 0.0
			for _, sel := range selected {
				sim := cosine(ix.entries[cand.pos].vector, ix.entries[cand.pos].norm,
					ix.entries[sel].vector, ix.entries[sel].norm)
				if sim > redundancy {
					redundancy = sim
				}
			}

			score := lambda*cand.score - (1-lambda)*redundancy
			if score > bestScore {
				bestScore = score
				best = cand.pos
			}
		}

		if best < 0 {
			break
		}
		selected = append(selected, best)
		chosen[best] = true
	}

	chunks := make([]document.Chunk, len(selected))
	for i, pos := range selected {
		chunks[i] = ix.entries[pos].chunk
	}
	return chunks
}

// cosine computes cosine similarity from vectors with precomputed norms.
func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0.0
	}

	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
