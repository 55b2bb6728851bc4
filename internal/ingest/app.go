package ingest

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"github.com/kart-io/version"

	"github.com/kart-io/onboard/internal/kb/store"
	"github.com/kart-io/onboard/pkg/app"
	"github.com/kart-io/onboard/pkg/llm"
	kbopts "github.com/kart-io/onboard/pkg/options/kb"

	// Register embedding providers.
	_ "github.com/kart-io/onboard/pkg/llm/ollama"
)

const (
	appName        = "onboard-ingest"
	appDescription = `Onboarding knowledge base ingestion

Extracts the policy documents, chunks them, embeds every chunk, and
builds the vector index the API server searches at runtime.`
)

// NewApp creates the ingestion application.
func NewApp() *app.App {
	opts := NewOptions()

	return app.NewApp(
		app.WithName(appName),
		app.WithShortDescription("Onboarding knowledge base ingestion"),
		app.WithDescription(appDescription),
		app.WithOptions(opts),
		app.WithRunFunc(func() error {
			return Run(opts)
		}),
	)
}

// Run executes one ingestion pass: extract, chunk, embed, build.
func Run(opts *Options) error {
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", version.Get().GitVersion)
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if len(opts.Sources) == 0 {
		return fmt.Errorf("no sources configured, use --docs or the sources config section")
	}

	ctx := context.Background()

	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, map[string]any{
		"base_url":    opts.Embedding.BaseURL,
		"embed_model": opts.Embedding.Model,
		"timeout":     opts.Embedding.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedding provider: %w", err)
	}

	vectorStore, err := newVectorStore(opts)
	if err != nil {
		return err
	}
	defer func() { _ = vectorStore.Close(ctx) }()

	docs := LoadDocuments(opts.Sources)
	if len(docs) == 0 {
		return fmt.Errorf("none of the %d configured sources could be extracted", len(opts.Sources))
	}
	logger.Infow("documents extracted", "requested", len(opts.Sources), "loaded", len(docs))

	indexer := NewIndexer(embedProvider, vectorStore, NewChunker(opts.ChunkSize, opts.ChunkOverlap),
		WithEmbedBatchSize(opts.EmbedBatchSize),
		WithEmbedWorkers(opts.EmbedWorkers),
	)
	if err := indexer.BuildIndex(ctx, docs); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	logger.Info("ingestion complete")
	return nil
}

func newVectorStore(opts *Options) (store.VectorStore, error) {
	switch opts.KB.Backend {
	case kbopts.BackendMilvus:
		return store.NewMilvusStore(&store.MilvusConfig{
			Address:    opts.Milvus.Address,
			Username:   opts.Milvus.Username,
			Password:   opts.Milvus.Password,
			Database:   opts.Milvus.Database,
			Collection: opts.Milvus.Collection,
			Dimension:  opts.KB.EmbeddingDim,
			Timeout:    opts.Milvus.Timeout,
		})
	case kbopts.BackendFlat:
		return store.NewFlatStore(opts.KB.IndexPath, opts.KB.MetadataPath), nil
	default:
		return nil, fmt.Errorf("unknown kb backend %q", opts.KB.Backend)
	}
}
