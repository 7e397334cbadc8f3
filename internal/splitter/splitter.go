// Package splitter turns loaded documents into overlapping, embedding-ready
// chunks. Chunk boundaries prefer language-aware separators but the stride
// between consecutive chunks of one document is always exactly
// chunkSize - chunkOverlap at most, with the configured overlap carried
// into the next chunk verbatim.
package splitter

import (
	"errors"
	"fmt"

	"github.com/ChamsBouzaiene/semdex/internal/document"
)

// ErrInvalidChunking is returned when the size/overlap combination cannot
// produce forward progress.
var ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

// Splitter splits documents into chunks of at most chunkSize runes with
// chunkOverlap runes shared between consecutive chunks. A Splitter is
// immutable after construction.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	language     Language
}

// New creates a splitter for the given language.
func New(language Language, chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w (size %d, overlap %d)", ErrInvalidChunking, chunkSize, chunkOverlap)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		language:     language,
	}, nil
}

// Split splits each document into ordered chunks. Every chunk carries a
// copy of its document's metadata plus its ordinal and rune offset.
// Documents no longer than the chunk size yield exactly one chunk equal
// to the whole document; empty documents yield none.
func (s *Splitter) Split(docs []document.Document) []document.Chunk {
	var chunks []document.Chunk
	for _, doc := range docs {
		chunks = append(chunks, s.splitDocument(doc)...)
	}
	return chunks
}

func (s *Splitter) splitDocument(doc document.Document) []document.Chunk {
	runes := []rune(doc.Content)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []document.Chunk{s.newChunk(doc, doc.Content, 0, 0)}
	}

	separators := Separators(s.language)

	var chunks []document.Chunk
	start := 0
	for {
		end := start + s.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, s.newChunk(doc, string(runes[start:]), len(chunks), start))
			break
		}

		end = s.adjustBreak(runes, start, end, separators)
		chunks = append(chunks, s.newChunk(doc, string(runes[start:end]), len(chunks), start))

		// The next chunk starts exactly chunkOverlap runes before this
		// one ended, so trailing overlap of chunk i equals leading
		// overlap of chunk i+1 and dropping the overlap reconstructs
		// the document.
		start = end - s.chunkOverlap
	}
	return chunks
}

// adjustBreak moves the chunk end backward to the most meaningful
// separator found in the trailing half of the window. The adjusted end
// always stays far enough past start that the run makes forward progress.
func (s *Splitter) adjustBreak(runes []rune, start, end int, separators []string) int {
	min := start + (s.chunkSize / 2)
	if min <= start+s.chunkOverlap {
		min = start + s.chunkOverlap + 1
	}

	for _, sep := range separators {
		sepRunes := []rune(sep)
		idx := lastIndexRunes(runes, sepRunes, min, end)
		if idx < 0 {
			continue
		}
		if isWhitespaceSep(sep) {
			// Keep the separator with the preceding chunk.
			return idx + len(sepRunes)
		}
		// Syntax separators start with a newline; break after it so the
		// next chunk begins with the declaration itself.
		return idx + 1
	}
	return end
}

// lastIndexRunes finds the last occurrence of sep within runes such that
// the occurrence starts in [min, max-len(sep)]. Returns -1 if none.
func lastIndexRunes(runes, sep []rune, min, max int) int {
	for i := max - len(sep); i >= min; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func isWhitespaceSep(sep string) bool {
	for _, r := range sep {
		if r != '\n' && r != '\t' && r != ' ' {
			return false
		}
	}
	return true
}

func (s *Splitter) newChunk(doc document.Document, content string, ordinal, startIndex int) document.Chunk {
	meta := document.CopyMetadata(doc.Metadata)
	meta[document.MetaChunk] = ordinal
	meta[document.MetaStartIndex] = startIndex
	return document.Chunk{Content: content, Metadata: meta}
}

// ChunkSize returns the configured maximum chunk size in runes.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap in runes.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }
