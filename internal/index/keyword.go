package index

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
)

// keywordDoc is the shape indexed into bleve for BM25 scoring.
type keywordDoc struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// KeywordIndex provides BM25 keyword search over the chunks of an Index.
// It exists to serve hybrid retrieval; positions in the parent Index act
// as document IDs.
type KeywordIndex struct {
	index bleve.Index
}

// NewKeywordIndex builds an in-memory BM25 index over every chunk of ix.
func NewKeywordIndex(ix *Index) (*KeywordIndex, error) {
	bleveIndex, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create keyword index: %w", err)
	}

	batch := bleveIndex.NewBatch()
	for i := 0; i < ix.Len(); i++ {
		chunk := ix.Chunk(i)
		doc := keywordDoc{Content: chunk.Content, Source: chunk.Source()}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			return nil, fmt.Errorf("failed to index chunk %d: %w", i, err)
		}
	}
	if err := bleveIndex.Batch(batch); err != nil {
		return nil, fmt.Errorf("failed to commit keyword index batch: %w", err)
	}

	return &KeywordIndex{index: bleveIndex}, nil
}

// Search returns the positions of the top k keyword matches for query,
// best first. No matches yields an empty slice.
func (ki *KeywordIndex) Search(query string, k int) ([]int, error) {
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	result, err := ki.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	positions := make([]int, 0, len(result.Hits))
	for _, hit := range result.Hits {
		pos, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// Close releases the in-memory index.
func (ki *KeywordIndex) Close() error {
	return ki.index.Close()
}
