package skill

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

type embeddingsCall struct {
	Path       string
	APIVersion string
	APIKey     string
	Auth       string
	Input      []string
}

// openAIServer answers the embeddings API with dims-sized vectors in reverse
// order so callers must sort by index.
func openAIServer(t *testing.T, dims int, status int) (*httptest.Server, *[]embeddingsCall) {
	t.Helper()
	var calls []embeddingsCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		calls = append(calls, embeddingsCall{
			Path:       r.URL.Path,
			APIVersion: r.URL.Query().Get("api-version"),
			APIKey:     r.Header.Get("api-key"),
			Auth:       r.Header.Get("Authorization"),
			Input:      body.Input,
		})

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var data []item
		for i := len(body.Input) - 1; i >= 0; i-- {
			v := make([]float32, dims)
			v[0] = float32(i)
			data = append(data, item{Object: "embedding", Index: i, Embedding: v})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-ada-002",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewOpenAIEmbedder_Validation(t *testing.T) {
	_, err := NewOpenAIEmbedder(EmbedderConfig{Dimensions: 4})
	assert.Equal(t, cerrors.ErrCodeCredentialMissing, cerrors.GetCode(err))

	_, err = NewOpenAIEmbedder(EmbedderConfig{APIKey: "k"})
	assert.Equal(t, cerrors.ErrCodeConfigInvalid, cerrors.GetCode(err))

	_, err = NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Dimensions: 4, Provider: "azure"})
	assert.Equal(t, cerrors.ErrCodeConfigInvalid, cerrors.GetCode(err))

	_, err = NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Dimensions: 4, Provider: "ollama"})
	assert.Equal(t, cerrors.ErrCodeConfigInvalid, cerrors.GetCode(err))
}

func TestOpenAIEmbedder_BatchSortedByIndex(t *testing.T) {
	// Given: an OpenAI-compatible server
	srv, calls := openAIServer(t, 3, http.StatusOK)
	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "sk-test", Dimensions: 3, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	// When: embedding a batch
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	// Then: one call, results in input order
	require.Len(t, *calls, 1)
	assert.Equal(t, "/v1/embeddings", (*calls)[0].Path)
	assert.Equal(t, "Bearer sk-test", (*calls)[0].Auth)
	assert.Equal(t, []string{"a", "b", "c"}, (*calls)[0].Input)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	srv, calls := openAIServer(t, 2, http.StatusOK)
	e, err := NewOpenAIEmbedder(EmbedderConfig{
		Provider:   ProviderAzure,
		APIKey:     "az-key",
		Dimensions: 2,
		BaseURL:    srv.URL,
		APIVersion: "2023-05-15",
		Deployment: "ada-deploy",
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	assert.Equal(t, "/openai/deployments/ada-deploy/embeddings", (*calls)[0].Path)
	assert.Equal(t, "2023-05-15", (*calls)[0].APIVersion)
	assert.Equal(t, "az-key", (*calls)[0].APIKey)
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv, _ := openAIServer(t, 3, http.StatusOK)
	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Dimensions: 1536, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")

	assert.Equal(t, cerrors.ErrCodeDimensionMismatch, cerrors.GetCode(err))
}

func TestOpenAIEmbedder_RateLimitedIsRetryable(t *testing.T) {
	srv, _ := openAIServer(t, 3, http.StatusTooManyRequests)
	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Dimensions: 3, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")

	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeRateLimited, cerrors.GetCode(err))
	assert.True(t, cerrors.IsRetryable(err))
}

func TestOpenAIEmbedder_EmptyText(t *testing.T) {
	srv, calls := openAIServer(t, 3, http.StatusOK)
	e, err := NewOpenAIEmbedder(EmbedderConfig{APIKey: "k", Dimensions: 3, BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = e.EmbedBatch(context.Background(), []string{"ok", "  "})

	assert.Equal(t, cerrors.ErrCodeInvalidInput, cerrors.GetCode(err))
	assert.Empty(t, *calls)
}
