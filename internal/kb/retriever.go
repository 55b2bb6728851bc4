// Package kb provides semantic retrieval over the onboarding knowledge base.
package kb

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/onboard/internal/kb/store"
	"github.com/kart-io/onboard/pkg/llm"
)

// DefaultSimilarityThreshold is the minimum inner-product score a hit must
// reach to be considered relevant. Below it, the corpus most likely does
// not contain the answer, and returning nothing beats returning a
// confidently wrong chunk.
const DefaultSimilarityThreshold = 0.45

// RetrieverConfig contains retriever configuration.
type RetrieverConfig struct {
	// TopK is the default number of results when the caller passes k <= 0.
	TopK int
	// Threshold is the minimum similarity score for a hit.
	Threshold float32
}

// Retriever embeds queries and searches the vector store, applying the
// similarity threshold.
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever creates a retriever. The embedding provider must be the
// same one used at ingestion time.
func NewRetriever(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config.Threshold == 0 {
		config.Threshold = DefaultSimilarityThreshold
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		config:        config,
	}
}

// Search embeds the query, retrieves the top-k nearest chunks, and filters
// them by the similarity threshold. The result keeps the store's
// descending-score order. An empty result is not an error; an unavailable
// index is (store.ErrNotLoaded).
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]store.Hit, error) {
	if k <= 0 {
		k = r.config.TopK
	}

	queryVec, err := r.embedProvider.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	store.NormalizeL2(queryVec)

	hits, err := r.store.Search(ctx, queryVec, k)
	if err != nil {
		return nil, err
	}

	filtered := hits[:0]
	for _, hit := range hits {
		if hit.Score >= r.config.Threshold {
			filtered = append(filtered, hit)
		}
	}

	logger.Debugw("knowledge base search", "query", query, "k", k, "hits", len(filtered))
	return filtered, nil
}
