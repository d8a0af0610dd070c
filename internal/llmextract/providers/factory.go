package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brunokrugel/kgforge/internal/llmextract"
)

// ErrNoCredentials is returned when neither provider backend is
// credentialed (spec §4.2: "raises a configuration error" — mapped by
// cmd/ingest to exit code 1, the configuration/validation class).
var ErrNoCredentials = fmt.Errorf("llmextract: no provider credentialed (set OPENROUTER_API_KEY or AWS credentials)")

// New selects a Provider from environment variables, preferring the
// unified API (OpenRouter) over the cloud-hosted fallback (Bedrock) when
// both are credentialed. Grounded on intelligencedev-manifold/internal/
// llm/providers/factory.go's precedence-switch shape, adapted from a
// multi-backend chat factory to this package's two-backend extraction
// factory. There is no runtime fallback once a provider is selected: if
// the chosen backend starts failing, that surfaces as ordinary extraction
// errors and counts toward the consecutive-failure abort.
func New(ctx context.Context) (llmextract.Provider, error) {
	if key := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); key != "" {
		model := strings.TrimSpace(os.Getenv("OPENROUTER_MODEL_NAME"))
		if model == "" {
			return nil, fmt.Errorf("llmextract: OPENROUTER_API_KEY set but OPENROUTER_MODEL_NAME missing")
		}
		return NewOpenRouter(OpenRouterConfig{
			APIKey:  key,
			Model:   model,
			BaseURL: strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")),
			Timeout: 120 * time.Second,
		}, nil)
	}

	if region := strings.TrimSpace(os.Getenv("AWS_REGION")); region != "" {
		model := strings.TrimSpace(os.Getenv("BEDROCK_MODEL_NAME"))
		if model == "" {
			return nil, fmt.Errorf("llmextract: AWS_REGION set but BEDROCK_MODEL_NAME missing")
		}
		return NewBedrock(ctx, BedrockConfig{
			Region:    region,
			AccessKey: strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
			SecretKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
			Model:     model,
		})
	}

	return nil, ErrNoCredentials
}
