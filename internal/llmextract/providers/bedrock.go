package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/brunokrugel/kgforge/internal/llmextract"
)

// BedrockConfig configures the cloud-hosted-model fallback provider.
type BedrockConfig struct {
	Region    string
	AccessKey string
	SecretKey string
	Model     string
}

// Bedrock is an llmextract.Provider backed by AWS Bedrock's Converse API,
// which is model-family agnostic at the transport level (unlike each
// family's native InvokeModel payload shape). Grounded on
// intelligencedev-manifold/internal/objectstore/s3.go's aws-sdk-go-v2
// config/credentials wiring, extended from S3 to bedrockruntime.
type Bedrock struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrock builds the fallback provider from explicit configuration.
// Missing credentials are the factory's concern, not an error here: the
// client can also pick up credentials from the default provider chain
// (env vars, shared config, instance role).
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*Bedrock, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("bedrock: model required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load aws config: %w", err)
	}

	return &Bedrock{
		client: bedrockruntime.NewFromConfig(awsCfg),
		model:  model,
	}, nil
}

func (b *Bedrock) Name() string    { return "bedrock" }
func (b *Bedrock) ModelID() string { return b.model }

// Extract issues a single Converse call with the prompt as the sole user
// turn. No tool use, no system prompt: the ontology instructions travel
// inside the prompt text itself, matching the unified-API provider's
// contract.
func (b *Bedrock) Extract(ctx context.Context, prompt string, maxTokens int) (string, llmextract.Usage, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(b.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
	}
	if maxTokens > 0 {
		input.InferenceConfig = &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		}
	}

	out, err := b.client.Converse(ctx, input)
	if err != nil {
		return "", llmextract.Usage{}, fmt.Errorf("bedrock: converse: %w", err)
	}

	text, err := extractConverseText(out)
	if err != nil {
		return "", llmextract.Usage{}, err
	}

	usage := llmextract.Usage{}
	if out.Usage != nil {
		usage.PromptTokens = int(aws.ToInt32(out.Usage.InputTokens))
		usage.CompletionTokens = int(aws.ToInt32(out.Usage.OutputTokens))
	}
	return text, usage, nil
}

func extractConverseText(out *bedrockruntime.ConverseOutput) (string, error) {
	member, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || member == nil {
		return "", fmt.Errorf("bedrock: unexpected converse output shape")
	}

	var b strings.Builder
	for _, block := range member.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			b.WriteString(t.Value)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("bedrock: empty converse response")
	}
	return b.String(), nil
}
