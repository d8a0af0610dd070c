package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Embedder wraps the same unified-API SDK used for extraction
// (github.com/openai/openai-go/v2) pointed at its embeddings endpoint,
// implementing canon.Embedder. Grounded on
// intelligencedev-manifold/internal/llm/embeddings.go's
// GenerateEmbeddings/FetchEmbeddings intent (embed one chunk, return a
// float32 vector), but reuses the already-wired OpenAI-compatible SDK
// client instead of a duplicate hand-rolled net/http call.
type Embedder struct {
	sdk   sdk.Client
	model string
}

// EmbedderConfig mirrors OpenRouterConfig's shape; embeddings share the
// same API key and base URL as chat extraction.
type EmbedderConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewEmbedder builds an Embedder.
func NewEmbedder(cfg EmbedderConfig, httpClient *http.Client) (*Embedder, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("providers: embedder requires an API key")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("providers: embedder requires a model")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	opts = append(opts, option.WithBaseURL(baseURL))
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Embedder{sdk: sdk.NewClient(opts...), model: cfg.Model}, nil
}

// Embed implements canon.Embedder: one dense vector per call, matching
// the dedup hook's one-entity-at-a-time usage.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
		Model: sdk.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("providers: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("providers: embed: empty response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
