package kb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// scoredStore returns a fixed, descending hit list regardless of query.
type scoredStore struct {
	hits     []store.Hit
	loaded   bool
	gotTopK  int
	gotQuery []float32
}

func (s *scoredStore) Build(context.Context, []store.Row) error { return nil }

func (s *scoredStore) Search(_ context.Context, vector []float32, topK int) ([]store.Hit, error) {
	if !s.loaded {
		return nil, store.ErrNotLoaded
	}
	s.gotTopK = topK
	s.gotQuery = vector
	if len(s.hits) > topK {
		return s.hits[:topK], nil
	}
	return s.hits, nil
}

func (s *scoredStore) Count(context.Context) (int64, error) { return int64(len(s.hits)), nil }
func (s *scoredStore) Close(context.Context) error          { return nil }

func TestRetrieverFiltersByThreshold(t *testing.T) {
	st := &scoredStore{
		loaded: true,
		hits: []store.Hit{
			{Score: 0.91, Meta: store.ChunkMetadata{ChunkID: "a"}},
			{Score: 0.46, Meta: store.ChunkMetadata{ChunkID: "b"}},
			{Score: 0.44, Meta: store.ChunkMetadata{ChunkID: "c"}},
			{Score: 0.10, Meta: store.ChunkMetadata{ChunkID: "d"}},
		},
	}

	r := NewRetriever(st, stubEmbedder{}, &RetrieverConfig{TopK: 5})

	hits, err := r.Search(context.Background(), "Sweden address requirements", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Meta.ChunkID)
	assert.Equal(t, "b", hits[1].Meta.ChunkID)

	// Every surviving hit clears the default threshold.
	for _, hit := range hits {
		assert.GreaterOrEqual(t, hit.Score, float32(DefaultSimilarityThreshold))
	}
}

func TestRetrieverEmptyResultIsNotAnError(t *testing.T) {
	st := &scoredStore{
		loaded: true,
		hits:   []store.Hit{{Score: 0.2, Meta: store.ChunkMetadata{ChunkID: "far"}}},
	}

	r := NewRetriever(st, stubEmbedder{}, &RetrieverConfig{TopK: 5})

	hits, err := r.Search(context.Background(), "unrelated question", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRetrieverNotLoadedIsAnError(t *testing.T) {
	r := NewRetriever(&scoredStore{loaded: false}, stubEmbedder{}, &RetrieverConfig{TopK: 5})

	_, err := r.Search(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, store.ErrNotLoaded)
}

func TestRetrieverDefaultTopK(t *testing.T) {
	st := &scoredStore{loaded: true}
	r := NewRetriever(st, stubEmbedder{}, &RetrieverConfig{TopK: 3})

	_, err := r.Search(context.Background(), "query", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, st.gotTopK)
}

func TestRetrieverNormalizesQuery(t *testing.T) {
	st := &scoredStore{loaded: true}
	r := NewRetriever(st, stubEmbedder{}, &RetrieverConfig{TopK: 3})

	_, err := r.Search(context.Background(), "query", 3)
	require.NoError(t, err)

	var norm float64
	for _, v := range st.gotQuery {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-6)
}
