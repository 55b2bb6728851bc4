package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/onboard/internal/apiserver/handler"
	"github.com/kart-io/onboard/internal/apiserver/router"
	"github.com/kart-io/onboard/internal/customer"
	"github.com/kart-io/onboard/internal/kb"
	"github.com/kart-io/onboard/internal/kb/store"
	"github.com/kart-io/onboard/internal/onboarding"
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

type fixedStore struct {
	hits []store.Hit
}

func (f *fixedStore) Build(context.Context, []store.Row) error { return nil }

func (f *fixedStore) Search(_ context.Context, _ []float32, topK int) ([]store.Hit, error) {
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fixedStore) Count(context.Context) (int64, error) { return int64(len(f.hits)), nil }
func (f *fixedStore) Close(context.Context) error          { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry, err := onboarding.NewRegistry()
	require.NoError(t, err)

	st, err := customer.NewStore(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	customers := customer.NewService(st)

	hits := []store.Hit{
		{
			Score: 0.8,
			Meta: store.ChunkMetadata{
				ChunkID: "branch_mappings_0",
				Source:  "branch_mappings",
				Text:    "Denmark:\nCopenhagen Central Branch\nContact: cph@bank.example",
				Email:   "cph@bank.example",
				Region:  "Denmark",
				Branch:  "Copenhagen Central Branch",
			},
		},
	}
	retriever := kb.NewRetriever(&fixedStore{hits: hits}, stubEmbedder{}, &kb.RetrieverConfig{TopK: 5})

	sessions := onboarding.NewMemorySessionStore(time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })

	engine := onboarding.NewEngine(registry, customers, retriever, onboarding.NewBranchResolver(retriever), sessions)
	tools := onboarding.NewToolset(registry, customers, retriever)

	return router.New(handler.New(engine, tools, retriever))
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "Onboarding API is running", resp.Message)
}

func TestInfoListsEndpoints(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/v1/kb/search")
}

func TestChatGreeting(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"session_id":"s1","message":"Hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello! How can I assist you today?", resp.Response)
	assert.Equal(t, "s1", resp.SessionID)
}

func TestChatFullRegistration(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"session_id":"s1","message":"I want to register, I live in Denmark and my ID is 0101901234"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Identity verified")

	w = doJSON(t, r, http.MethodPost, "/chat", `{"session_id":"s1","message":"yes"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Account created successfully")
	assert.Contains(t, w.Body.String(), "cph@bank.example")
}

func TestChatRejectsMissingFields(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/chat", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, "/chat", `{"session_id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/kb/search", `{"query":"Denmark branch","k":3}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string              `json:"status"`
		Hits   []handler.SearchHit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "branch_mappings_0", resp.Hits[0].Chunk.ChunkID)
	assert.InDelta(t, 0.8, resp.Hits[0].Score, 1e-6)
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/kb/search", `{"k":3}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestToolVerifyResidencePermit(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/tools/verify_residence_permit", `{"user_input":"AB123","expected_rp":"AB123"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp onboarding.PermitVerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)
}

func TestToolRegistryLookup(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/tools/registry_lookup", `"DK 0101901234"`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp onboarding.RegistryLookupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "new", resp.CustomerStatus)
}

func TestToolUnknownName(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/tools/nope", `""`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
