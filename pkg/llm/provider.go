// Package llm provides a unified abstraction over embedding providers.
//
// Ingestion and serving must construct the provider from the same
// configuration: vectors produced by different models are not comparable,
// and the similarity threshold is calibrated against one embedding space.
package llm

import (
	"context"
	"fmt"
	"sync"
)

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates one embedding per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name returns the provider name.
	Name() string
}

// EmbeddingProviderFactory constructs a provider from a config map.
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

var registry = struct {
	mu        sync.RWMutex
	factories map[string]EmbeddingProviderFactory
}{
	factories: make(map[string]EmbeddingProviderFactory),
}

// RegisterEmbeddingProvider registers a provider factory under a name.
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.factories[name] = factory
}

// NewEmbeddingProvider creates a provider instance by registered name.
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.factories[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", name)
	}

	return factory(config)
}

// ListProviders lists all registered provider names.
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.factories))
	for name := range registry.factories {
		names = append(names, name)
	}
	return names
}
