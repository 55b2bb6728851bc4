package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/kart-io/onboard/internal/kb/store"
	"github.com/kart-io/onboard/internal/pkg/textutil"
	"github.com/kart-io/onboard/pkg/llm"
)

const (
	defaultEmbedBatchSize = 32
	defaultEmbedWorkers   = 4
)

// Indexer turns extracted documents into an embedded, searchable index.
type Indexer struct {
	provider  llm.EmbeddingProvider
	store     store.VectorStore
	chunker   *Chunker
	batchSize int
	workers   int
}

// IndexerOption customizes an Indexer.
type IndexerOption func(*Indexer)

// WithEmbedBatchSize sets how many chunks are embedded per provider call.
func WithEmbedBatchSize(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithEmbedWorkers sets the number of concurrent embedding workers.
func WithEmbedWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// NewIndexer creates an indexer wired to an embedding provider and a
// vector store.
func NewIndexer(provider llm.EmbeddingProvider, st store.VectorStore, chunker *Chunker, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		provider:  provider,
		store:     st,
		chunker:   chunker,
		batchSize: defaultEmbedBatchSize,
		workers:   defaultEmbedWorkers,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// BuildIndex chunks the documents, embeds every chunk and builds the
// vector store. Chunk identifiers are assigned from a single ordinal
// counter across all documents, so rebuilding from the same inputs
// yields the same identifiers.
func (ix *Indexer) BuildIndex(ctx context.Context, docs []Document) error {
	var (
		chunks []string
		metas  []store.ChunkMetadata
	)

	ordinal := 0
	for _, doc := range docs {
		for _, chunk := range ix.chunker.Chunk(doc) {
			meta := store.ChunkMetadata{
				ChunkID:    fmt.Sprintf("%s_%d", doc.Source, ordinal),
				ChunkIndex: ordinal,
				Source:     doc.Source,
				Text:       chunk,
			}
			enrichMetadata(&meta, doc.Source, chunk)
			chunks = append(chunks, chunk)
			metas = append(metas, meta)
			ordinal++
		}
	}

	if len(chunks) == 0 {
		return fmt.Errorf("no chunks produced from %d documents", len(docs))
	}

	logger.Infow("embedding chunks", "chunks", len(chunks), "batch_size", ix.batchSize, "workers", ix.workers)

	embeddings, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return err
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	rows := make([]store.Row, len(chunks))
	for i, vec := range embeddings {
		store.NormalizeL2(vec)
		rows[i] = store.Row{Vector: vec, Meta: metas[i]}
	}

	if err := ix.store.Build(ctx, rows); err != nil {
		return fmt.Errorf("build vector store: %w", err)
	}

	logger.Infow("index built", "rows", len(rows))

	return nil
}

// embedAll embeds chunks in fixed-size batches over a worker pool. Results
// land in a preallocated slice at their batch offset so chunk order is
// preserved regardless of completion order.
func (ix *Indexer) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	embeddings := make([][]float32, len(chunks))

	pool, err := ants.NewPool(ix.workers)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		offset, batch := start, chunks[start:end]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			vecs, err := ix.provider.Embed(ctx, batch)
			if err != nil {
				errOnce.Do(func() { firstErr = fmt.Errorf("embed batch at %d: %w", offset, err) })
				return
			}
			if len(vecs) != len(batch) {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("embed batch at %d: got %d vectors for %d chunks", offset, len(vecs), len(batch))
				})
				return
			}
			copy(embeddings[offset:], vecs)
		})
		if submitErr != nil {
			wg.Done()
			errOnce.Do(func() { firstErr = fmt.Errorf("submit embedding batch: %w", submitErr) })
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return embeddings, nil
}

// enrichMetadata fills the routing fields for branch mapping chunks. The
// region is the country label on the chunk's first line, the branch is the
// first content line and the email is extracted from the chunk body.
func enrichMetadata(meta *store.ChunkMetadata, source, chunk string) {
	if source != "branch_mappings" {
		return
	}

	lines := strings.SplitN(chunk, "\n", 3)
	meta.Region = strings.TrimSuffix(strings.TrimSpace(lines[0]), ":")
	if len(lines) > 1 {
		meta.Branch = strings.TrimSpace(lines[1])
	}
	meta.Email = textutil.ExtractEmail(chunk)
}
