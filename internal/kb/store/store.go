// Package store provides vector storage backends for the knowledge base.
package store

import (
	"context"
	"errors"
	"math"
)

// ErrNotLoaded is returned when a search is attempted before an index has
// been built or loaded. It is distinct from a search with zero results.
var ErrNotLoaded = errors.New("vector index not loaded")

// ChunkMetadata is the denormalized record stored alongside each chunk's
// vector. Email, Region, and Branch are populated only for branch-mapping
// chunks.
type ChunkMetadata struct {
	ChunkID    string `json:"chunk_id"`
	ChunkIndex int    `json:"chunk_index"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	Email      string `json:"email,omitempty"`
	Region     string `json:"region,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

// Row couples one embedding vector with its metadata. Keeping vector and
// metadata in a single container is what guarantees they cannot drift out
// of alignment.
type Row struct {
	Vector []float32
	Meta   ChunkMetadata
}

// Hit is a single search result: the similarity score and the metadata of
// the matched chunk. Scores are inner products over unit vectors, so they
// fall in [-1, 1].
type Hit struct {
	Score float32
	Meta  ChunkMetadata
}

// VectorStore is the storage interface shared by the flat file-backed
// index and the Milvus-backed index.
type VectorStore interface {
	// Build replaces the index contents with the given rows and persists
	// them. Vectors must already be L2-normalized.
	Build(ctx context.Context, rows []Row) error

	// Search returns up to topK nearest rows by inner product, descending.
	// The query vector must be L2-normalized. Returns ErrNotLoaded if no
	// index is available.
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)

	// Count returns the number of indexed rows.
	Count(ctx context.Context) (int64, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}

// NormalizeL2 scales vec to unit length in place. Inner product equals
// cosine similarity only for unit vectors; every vector must pass through
// here before insertion or search. Zero vectors are left unchanged.
func NormalizeL2(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
