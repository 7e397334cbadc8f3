// Package embed generates vector embeddings for text chunks and provides
// a write-through, content-addressed cache around the embedding model.
package embed

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
)

// Embedder generates vector embeddings for text.
// This abstracts the embedding model (OpenAI, local model, test fake).
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one model
	// invocation. Output order matches input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimension of the embedding vectors.
	Dimension() int
}

// EncodeVector encodes a float32 vector to bytes.
// Uses little-endian encoding so entries round-trip across platforms.
func EncodeVector(vector []float32) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		// Cannot happen for float32 slices.
		panic(fmt.Sprintf("failed to encode vector: %v", err))
	}
	return buf.Bytes()
}

// DecodeVector decodes a byte slice back to a float32 vector.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data length: %d", len(data))
	}

	vector := make([]float32, len(data)/4)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}
