package llmextract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/brunokrugel/kgforge/internal/model"
	"github.com/brunokrugel/kgforge/internal/ontology"
)

// ErrTooManyFailures is returned once consecutive extraction failures
// exceed the configured abort threshold (spec §4.2/§7; the aborted run
// exits with code 2).
var ErrTooManyFailures = errors.New("llmextract: consecutive failure threshold exceeded")

// DefaultMaxConsecutiveFailures is the abort threshold used when Config
// leaves MaxConsecutiveFailures unset.
const DefaultMaxConsecutiveFailures = 10

// DefaultMaxTokens bounds completion length when Config leaves it unset.
const DefaultMaxTokens = 4096

// DefaultMaxCharsPerDoc is the tail-truncation cutoff applied to a
// document's text before it is substituted into the prompt, when Config
// leaves it unset.
const DefaultMaxCharsPerDoc = 24000

// Config tunes LLMExtractor behavior; zero values fall back to the package
// defaults above.
type Config struct {
	MaxConsecutiveFailures int
	MaxTokens              int
	MaxCharsPerDoc         int
}

func (c Config) withDefaults() Config {
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxCharsPerDoc <= 0 {
		c.MaxCharsPerDoc = DefaultMaxCharsPerDoc
	}
	return c
}

// LLMExtractor drives one document at a time through prompt assembly,
// the provider call, and strict-JSON parsing. It is not safe for
// concurrent use across documents: the consecutive-failure counter is
// run-scoped and the orchestrator is single-threaded by design (spec §9).
type LLMExtractor struct {
	provider Provider
	cfg      Config

	promptTemplate string
	types          map[string]ontology.Type

	consecutiveFailures int
}

// NewLLMExtractor builds an extractor bound to one provider and one
// assembled prompt template (the {{ENTITY_TYPE_DEFINITIONS}} placeholder
// already filled in by ontology.AssemblePrompt; {{TEXT}} remains).
func NewLLMExtractor(provider Provider, promptTemplate string, types map[string]ontology.Type, cfg Config) *LLMExtractor {
	return &LLMExtractor{
		provider:       provider,
		cfg:            cfg.withDefaults(),
		promptTemplate: promptTemplate,
		types:          types,
	}
}

// ConsecutiveFailures reports the current run-scoped streak, for the
// orchestrator's statistics and abort decision.
func (x *LLMExtractor) ConsecutiveFailures() int {
	return x.consecutiveFailures
}

// Extract runs one document through the provider and returns its parsed
// result. It retries exactly once on a transient failure (provider error,
// context deadline, or JSON parse failure) before giving up on the
// document. Two straight failures for the same document therefore count
// as a single tick of the run-scoped consecutive-failure counter, not two.
func (x *LLMExtractor) Extract(ctx context.Context, doc model.Document) (model.ExtractionResult, []ParseWarning, error) {
	tracer := otel.Tracer("internal/llmextract")
	ctx, span := tracer.Start(ctx, "llmextract.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("doc_id", doc.DocID),
		attribute.String("namespace", doc.Namespace),
		attribute.String("provider", x.provider.Name()),
		attribute.String("model", x.provider.ModelID()),
	)

	text, truncated, originalLen := truncateTail(doc.Text, x.cfg.MaxCharsPerDoc)
	if truncated {
		log.Warn().
			Str("doc_id", doc.DocID).
			Int("original_len", originalLen).
			Int("truncated_len", len(text)).
			Msg("llmextract_truncated_document")
	}

	prompt := ontology.SubstituteText(x.promptTemplate, text)

	result, warnings, err := x.attemptOnce(ctx, doc.DocID, prompt)
	if err != nil {
		log.Warn().Str("doc_id", doc.DocID).Err(err).Msg("llmextract_attempt_failed_retrying")
		result, warnings, err = x.attemptOnce(ctx, doc.DocID, prompt)
	}

	if err != nil {
		x.consecutiveFailures++
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().
			Str("doc_id", doc.DocID).
			Int("consecutive_failures", x.consecutiveFailures).
			Err(err).
			Msg("llmextract_document_failed")
		if x.consecutiveFailures >= x.cfg.MaxConsecutiveFailures {
			return model.ExtractionResult{}, nil, fmt.Errorf("%w: %d in a row, last error: %v", ErrTooManyFailures, x.consecutiveFailures, err)
		}
		return model.ExtractionResult{}, nil, err
	}

	x.consecutiveFailures = 0
	for _, w := range warnings {
		log.Warn().Str("doc_id", doc.DocID).Msg(w.Message)
	}
	span.SetAttributes(
		attribute.Int("entities", len(result.Entities)),
		attribute.Int("relations", len(result.Relations)),
	)
	return result, warnings, nil
}

func (x *LLMExtractor) attemptOnce(ctx context.Context, docID, prompt string) (model.ExtractionResult, []ParseWarning, error) {
	start := time.Now()
	raw, usage, err := x.provider.Extract(ctx, prompt, x.cfg.MaxTokens)
	elapsed := time.Since(start)
	if err != nil {
		return model.ExtractionResult{}, nil, fmt.Errorf("llmextract: provider call for %s: %w", docID, err)
	}

	log.Debug().
		Str("doc_id", docID).
		Str("provider", x.provider.Name()).
		Str("model", x.provider.ModelID()).
		Dur("elapsed", elapsed).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Msg("llmextract_provider_call")

	result, warnings, err := ParseResponse(docID, raw)
	if err != nil {
		return model.ExtractionResult{}, nil, err
	}
	return result, warnings, nil
}

// truncateTail deterministically cuts text to at most maxChars runes,
// keeping the prefix. Returns whether truncation occurred and the
// original length for logging (spec §4.2 truncation policy).
func truncateTail(text string, maxChars int) (out string, truncated bool, originalLen int) {
	runes := []rune(text)
	originalLen = len(runes)
	if originalLen <= maxChars {
		return text, false, originalLen
	}
	return string(runes[:maxChars]), true, originalLen
}
