package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/onboard/internal/customer"
	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/kb/store"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (s stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, _ := s.Embed(ctx, []string{text})
	return vecs[0], nil
}

func (stubEmbedder) Name() string { return "stub" }

// fixedStore returns the same hit list for every query.
type fixedStore struct {
	hits []store.Hit
	err  error
}

func (f *fixedStore) Build(context.Context, []store.Row) error { return nil }

func (f *fixedStore) Search(_ context.Context, _ []float32, topK int) ([]store.Hit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fixedStore) Count(context.Context) (int64, error) { return int64(len(f.hits)), nil }
func (f *fixedStore) Close(context.Context) error          { return nil }

func newTestRetriever(hits []store.Hit, err error) *kb.Retriever {
	return kb.NewRetriever(&fixedStore{hits: hits, err: err}, stubEmbedder{}, &kb.RetrieverConfig{TopK: 5})
}

func newTestCustomers(t *testing.T) *customer.Service {
	t.Helper()
	st, err := customer.NewStore(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return customer.NewService(st)
}

// branchHits is a knowledge base containing one routable branch chunk.
func branchHits() []store.Hit {
	return []store.Hit{
		{
			Score: 0.82,
			Meta: store.ChunkMetadata{
				ChunkID: "branch_mappings_3",
				Source:  "branch_mappings",
				Text:    "Denmark:\nCopenhagen Central Branch\nContact: cph@bank.example",
				Email:   "cph@bank.example",
				Region:  "Denmark",
				Branch:  "Copenhagen Central Branch",
			},
		},
	}
}

func newTestEngine(t *testing.T, hits []store.Hit) (*Engine, *customer.Service) {
	t.Helper()

	registry, err := NewRegistry()
	require.NoError(t, err)

	customers := newTestCustomers(t)
	retriever := newTestRetriever(hits, nil)
	resolver := NewBranchResolver(retriever)
	sessions := NewMemorySessionStore(time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })

	return NewEngine(registry, customers, retriever, resolver, sessions), customers
}
