package index

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/document"
)

func chunk(content string) document.Chunk {
	return document.Chunk{
		Content:  content,
		Metadata: map[string]any{document.MetaSource: content},
	}
}

func contents(chunks []document.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func buildTestIndex(t *testing.T, vectors map[string][]float32, order []string) *Index {
	t.Helper()
	ix := New()
	for _, name := range order {
		if err := ix.Add(chunk(name), vectors[name]); err != nil {
			t.Fatalf("Add(%s) error = %v", name, err)
		}
	}
	return ix
}

func TestAddDimensionMismatch(t *testing.T) {
	ix := New()
	if err := ix.Add(chunk("a"), []float32{1, 0, 0}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := ix.Add(chunk("b"), []float32{1, 0}); err == nil {
		t.Error("Add() with mismatched dimension should fail")
	}
	if err := ix.Add(chunk("c"), nil); err == nil {
		t.Error("Add() with an empty vector should fail")
	}
}

func TestSimilaritySearchRanking(t *testing.T) {
	vectors := map[string][]float32{
		"exact":      {1, 0, 0},
		"close":      {0.9, 0.1, 0},
		"orthogonal": {0, 1, 0},
		"opposite":   {-1, 0, 0},
	}
	ix := buildTestIndex(t, vectors, []string{"opposite", "orthogonal", "close", "exact"})

	got := contents(ix.SimilaritySearch([]float32{1, 0, 0}, 3))
	want := []string{"exact", "close", "orthogonal"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SimilaritySearch() = %v, want %v", got, want)
	}
}

func TestSimilaritySearchKBounds(t *testing.T) {
	vectors := map[string][]float32{"a": {1, 0}, "b": {0, 1}}
	ix := buildTestIndex(t, vectors, []string{"a", "b"})

	if got := ix.SimilaritySearch([]float32{1, 0}, 10); len(got) != 2 {
		t.Errorf("k larger than index returned %d results, want 2", len(got))
	}
	if got := ix.SimilaritySearch([]float32{1, 0}, 0); len(got) != 0 {
		t.Errorf("k=0 returned %d results", len(got))
	}
}

func TestSimilaritySearchStableTies(t *testing.T) {
	// Three identical vectors: scores tie, so insertion order must win.
	vectors := map[string][]float32{
		"first":  {1, 1},
		"second": {1, 1},
		"third":  {1, 1},
	}
	ix := buildTestIndex(t, vectors, []string{"first", "second", "third"})

	want := []string{"first", "second", "third"}
	for i := 0; i < 5; i++ {
		got := contents(ix.SimilaritySearch([]float32{1, 0}, 3))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: tie order = %v, want %v", i, got, want)
		}
	}
}

func TestSimilaritySearchDeterminism(t *testing.T) {
	vectors := map[string][]float32{
		"a": {0.8, 0.2, 0.1},
		"b": {0.1, 0.9, 0.3},
		"c": {0.4, 0.4, 0.4},
		"d": {0.9, 0.05, 0.2},
	}
	ix := buildTestIndex(t, vectors, []string{"a", "b", "c", "d"})

	first := contents(ix.SimilaritySearch([]float32{0.7, 0.3, 0.2}, 3))
	for i := 0; i < 10; i++ {
		again := contents(ix.SimilaritySearch([]float32{0.7, 0.3, 0.2}, 3))
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("repeated query returned %v, previously %v", again, first)
		}
	}
}

func TestMMRSearchPrefersDiversity(t *testing.T) {
	// Two near-duplicates close to the query and one distinct but still
	// relevant vector. Pure similarity picks both duplicates; MMR must
	// swap the redundant one out.
	vectors := map[string][]float32{
		"dup1":     {1, 0, 0},
		"dup2":     {1, 0.1, 0},
		"distinct": {0, 1, 0},
	}
	ix := buildTestIndex(t, vectors, []string{"dup1", "dup2", "distinct"})
	query := []float32{1, 0.2, 0}

	sim := contents(ix.SimilaritySearch(query, 2))
	if !reflect.DeepEqual(sim, []string{"dup2", "dup1"}) {
		t.Fatalf("similarity baseline = %v", sim)
	}

	mmr := contents(ix.MMRSearch(query, 2, 3, 0.5))
	if !reflect.DeepEqual(mmr, []string{"dup2", "distinct"}) {
		t.Errorf("MMRSearch() = %v, want [dup2 distinct]", mmr)
	}
}

func TestMMRSearchKBounds(t *testing.T) {
	vectors := map[string][]float32{"a": {1, 0}, "b": {0, 1}}
	ix := buildTestIndex(t, vectors, []string{"a", "b"})

	if got := ix.MMRSearch([]float32{1, 0}, 5, 10, 0.5); len(got) != 2 {
		t.Errorf("k larger than index returned %d results, want 2", len(got))
	}
}

// stubEmbedder maps known texts to fixed vectors.
type stubEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, s.dim), nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return s.dim }

func TestRetrieverSimilarity(t *testing.T) {
	vectors := map[string][]float32{
		"alpha": {1, 0},
		"beta":  {0, 1},
	}
	ix := buildTestIndex(t, vectors, []string{"alpha", "beta"})

	embedder := &stubEmbedder{dim: 2, vectors: map[string][]float32{"find alpha": {1, 0}}}
	r, err := NewRetriever(ix, embedder, SearchSimilarity, RetrieverOptions{TopK: 1}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	defer r.Close()

	got, err := r.Retrieve(context.Background(), "find alpha")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "alpha" {
		t.Errorf("Retrieve() = %v, want [alpha]", contents(got))
	}
}

func TestRetrieverDeterminism(t *testing.T) {
	vectors := map[string][]float32{
		"a": {0.9, 0.1, 0}, "b": {0.1, 0.9, 0}, "c": {0.5, 0.5, 0}, "d": {0, 0, 1},
	}
	ix := buildTestIndex(t, vectors, []string{"a", "b", "c", "d"})
	embedder := &stubEmbedder{dim: 3, vectors: map[string][]float32{"q": {0.6, 0.4, 0}}}

	for _, searchType := range []SearchType{SearchSimilarity, SearchMMR} {
		r, err := NewRetriever(ix, embedder, searchType, RetrieverOptions{TopK: 3}, zap.NewNop())
		if err != nil {
			t.Fatalf("NewRetriever(%s) error = %v", searchType, err)
		}

		first, err := r.Retrieve(context.Background(), "q")
		if err != nil {
			t.Fatalf("Retrieve(%s) error = %v", searchType, err)
		}
		for i := 0; i < 5; i++ {
			again, err := r.Retrieve(context.Background(), "q")
			if err != nil {
				t.Fatalf("Retrieve(%s) error = %v", searchType, err)
			}
			if !reflect.DeepEqual(contents(first), contents(again)) {
				t.Fatalf("%s: repeated query returned %v, previously %v",
					searchType, contents(again), contents(first))
			}
		}
		r.Close()
	}
}

func TestRetrieverLambdaZeroIsPureDiversity(t *testing.T) {
	// lambda 0 scores candidates purely on diversity. c2 is more
	// relevant than c3 but nearly duplicates c1; only a genuine zero
	// lambda picks c3, while the 0.5 default would pick c2.
	vectors := map[string][]float32{
		"c1": {0.8, 0.6},
		"c2": {0.6, 0.8},
		"c3": {0, 1},
	}
	ix := buildTestIndex(t, vectors, []string{"c1", "c2", "c3"})
	embedder := &stubEmbedder{dim: 2, vectors: map[string][]float32{"q": {1, 0}}}

	zero := 0.0
	r, err := NewRetriever(ix, embedder, SearchMMR, RetrieverOptions{
		TopK: 2, FetchK: 3, Lambda: &zero,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	defer r.Close()

	got, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []string{"c1", "c3"}
	if !reflect.DeepEqual(contents(got), want) {
		t.Errorf("Retrieve() with lambda 0 = %v, want %v", contents(got), want)
	}
}

func TestRetrieverRejectsOutOfRangeLambda(t *testing.T) {
	ix := buildTestIndex(t, map[string][]float32{"a": {1, 0}}, []string{"a"})
	embedder := &stubEmbedder{dim: 2}

	for _, bad := range []float64{-0.1, 1.5} {
		lambda := bad
		_, err := NewRetriever(ix, embedder, SearchMMR, RetrieverOptions{Lambda: &lambda}, zap.NewNop())
		if err == nil {
			t.Errorf("NewRetriever() accepted lambda %v", bad)
		}
	}
}

func TestRetrieverHybrid(t *testing.T) {
	// "rename the flag parser" shares keywords with the flag chunk but
	// its vector is closest to the config chunk; hybrid fuses both
	// signals, so both chunks must appear.
	vectors := map[string][]float32{
		"parsing command line flag values": {0, 1},
		"loading configuration from disk":  {1, 0},
	}
	ix := buildTestIndex(t, vectors, []string{
		"parsing command line flag values",
		"loading configuration from disk",
	})
	embedder := &stubEmbedder{dim: 2, vectors: map[string][]float32{
		"rename the flag parser": {1, 0},
	}}

	r, err := NewRetriever(ix, embedder, SearchHybrid, RetrieverOptions{TopK: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetriever() error = %v", err)
	}
	defer r.Close()

	got, err := r.Retrieve(context.Background(), "rename the flag parser")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Retrieve() returned %d chunks, want 2", len(got))
	}
	// The keyword match boosts the flag chunk above the pure vector
	// winner under reciprocal rank fusion.
	if got[0].Content != "parsing command line flag values" {
		t.Errorf("Retrieve()[0] = %q, want the keyword-matched chunk", got[0].Content)
	}
}

func TestParseSearchType(t *testing.T) {
	for _, valid := range []string{"similarity", "mmr", "hybrid"} {
		if _, err := ParseSearchType(valid); err != nil {
			t.Errorf("ParseSearchType(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseSearchType("fuzzy"); err == nil {
		t.Error("ParseSearchType(fuzzy) should fail")
	}
}
