// Package llmextract drives the per-document LLM extraction call: prompt
// assembly is the caller's job (via internal/ontology); this package owns
// the provider abstraction, the strict-JSON response protocol, retries, and
// run-scoped consecutive-failure accounting (spec §4.2).
package llmextract

import "context"

// Usage reports token accounting for a single call, when the provider
// reports it (spec §4.2 Observability).
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Provider is the single capability set every concrete LLM backend
// implements (spec §9 "Provider-pluggable LLM"): extract(prompt,
// max_tokens) -> raw_text, model_id, usage_tokens.
type Provider interface {
	// Extract sends prompt to the model and returns its raw text response.
	Extract(ctx context.Context, prompt string, maxTokens int) (raw string, usage Usage, err error)
	// ModelID identifies the concrete model in use, for observability.
	ModelID() string
	// Name identifies the provider backend, e.g. "openrouter" or "bedrock".
	Name() string
}
