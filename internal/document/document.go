// Package document defines the document and chunk types shared by the
// loading, splitting, embedding, and retrieval stages.
package document

// Metadata keys set by the loader and splitter.
const (
	MetaSource     = "source"      // relative path of the originating file
	MetaLanguage   = "language"    // detected language, when known
	MetaChunk      = "chunk"       // ordinal of the chunk within its document
	MetaStartIndex = "start_index" // rune offset of the chunk in the document
)

// Document is a loaded source file: its full text plus loader metadata.
// Documents are immutable once created.
type Document struct {
	Content  string
	Metadata map[string]any
}

// Chunk is a bounded substring of a document prepared for embedding.
// It carries a copy of the parent document's metadata plus offset info,
// and is never mutated after the splitter produces it.
type Chunk struct {
	Content  string
	Metadata map[string]any
}

// CopyMetadata returns a shallow copy of m so that chunks never alias
// their parent document's metadata map.
func CopyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Source returns the chunk's source path, or "" if the loader did not set one.
func (c Chunk) Source() string {
	if s, ok := c.Metadata[MetaSource].(string); ok {
		return s
	}
	return ""
}
