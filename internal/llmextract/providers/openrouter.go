// Package providers implements the two concrete llmextract.Provider
// backends named in spec §4.2/§6: the "unified API" (OpenRouter, reached
// through the OpenAI chat-completions protocol) and the "cloud-hosted
// model" fallback (AWS Bedrock).
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/brunokrugel/kgforge/internal/llmextract"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterConfig configures the unified-API provider.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenRouter is an llmextract.Provider backed by the OpenAI SDK pointed at
// OpenRouter's OpenAI-compatible endpoint. Grounded on
// intelligencedev-manifold/internal/llm/openai/client.go's client-construction
// and Chat.Completions.New call shape.
type OpenRouter struct {
	sdk   sdk.Client
	model string
}

// NewOpenRouter builds a unified-API provider. Returns an error when the
// API key or the model is empty; choosing whether this provider applies
// at all is the factory's concern.
func NewOpenRouter(cfg OpenRouterConfig, httpClient *http.Client) (*OpenRouter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openrouter: api key required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("openrouter: model required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/")),
		option.WithHTTPClient(httpClient),
	}

	return &OpenRouter{
		sdk:   sdk.NewClient(opts...),
		model: model,
	}, nil
}

func (o *OpenRouter) Name() string    { return "openrouter" }
func (o *OpenRouter) ModelID() string { return o.model }

// Extract issues a single chat-completion call with the prompt as the sole
// user message and no tool definitions: the extraction protocol (spec
// §4.2) is carried entirely in the prompt text, not in function-calling.
func (o *OpenRouter) Extract(ctx context.Context, prompt string, maxTokens int) (string, llmextract.Usage, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(o.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}

	comp, err := o.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", llmextract.Usage{}, fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", llmextract.Usage{}, fmt.Errorf("openrouter: empty response")
	}

	usage := llmextract.Usage{
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}
	return comp.Choices[0].Message.Content, usage, nil
}
