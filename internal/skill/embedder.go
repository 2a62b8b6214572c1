package skill

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
)

// Embedder turns text into vectors.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions is the vector length every result must have.
	Dimensions() int
	// ModelName identifies the model for cache keys and logs.
	ModelName() string
}

// Provider values.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// EmbedderConfig configures an OpenAIEmbedder.
type EmbedderConfig struct {
	Provider   string
	APIKey     string
	Model      string
	Dimensions int
	// BaseURL is the Azure OpenAI endpoint, or an OpenAI-compatible base URL.
	BaseURL    string
	APIVersion string
	// Deployment is the Azure deployment that serves Model.
	Deployment string
	HTTPClient *http.Client
}

// OpenAIEmbedder calls the OpenAI or Azure OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder builds an embedder for cfg.Provider.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, cerrors.New(cerrors.ErrCodeCredentialMissing, "embedding API key is not set", nil).
			WithSuggestion("Set OPENAI_API_KEY or AZURE_OPENAI_API_KEY")
	}
	if cfg.Dimensions <= 0 {
		return nil, cerrors.ConfigError(fmt.Sprintf("embedding dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.AdaEmbeddingV2)
	}

	var oc openai.ClientConfig
	switch strings.ToLower(cfg.Provider) {
	case ProviderAzure:
		if cfg.BaseURL == "" || cfg.Deployment == "" {
			return nil, cerrors.ConfigError("azure embeddings need base_url and deployment", nil)
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Deployment
		oc.AzureModelMapperFunc = func(string) string { return deployment }
	case ProviderOpenAI, "":
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	default:
		return nil, cerrors.ConfigError("unknown embedding provider: "+cfg.Provider, nil)
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder with a single API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, cerrors.ValidationError(fmt.Sprintf("cannot embed empty text at position %d", i), nil)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, embeddingError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, cerrors.New(cerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		if err := checkDimensions(d.Embedding, e.dims); err != nil {
			return nil, err
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

func embeddingError(err error) error {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return cerrors.New(cerrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
	code := cerrors.ErrCodeEmbeddingFailed
	switch {
	case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
		code = cerrors.ErrCodeRateLimited
	case apiErr.HTTPStatusCode >= 500:
		code = cerrors.ErrCodeServiceUnavailable
	case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
		code = cerrors.ErrCodeUnauthorized
	}
	return cerrors.New(code, "embedding request failed: "+apiErr.Message, err).
		WithDetail("status", fmt.Sprint(apiErr.HTTPStatusCode))
}

func checkDimensions(vec []float32, want int) error {
	if len(vec) != want {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, index expects %d", len(vec), want), nil).
			WithSuggestion("Match embedding.dimensions to the model's output size")
	}
	return nil
}
