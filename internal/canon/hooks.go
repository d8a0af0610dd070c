// Package canon implements the canonicalization pipeline: ordered
// before_store hooks that normalize and deduplicate an extraction
// batch's entity list in place, plus after_batch hooks that run global
// dedup once a run completes (spec §4.3).
package canon

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/brunokrugel/kgforge/internal/model"
)

// BeforeStoreHook mutates entities in place — it may change Name,
// NormalizedName, Aliases, or the Dup tagged-variant fields on any
// element, but it must never reorder or remove entries: relation
// indices (I5) depend on index stability surviving every hook.
type BeforeStoreHook interface {
	Name() string
	Apply(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error)
}

// AfterBatchHook runs once after a run completes, typically global
// cross-document deduplication across an entire namespace.
type AfterBatchHook interface {
	Name() string
	ApplyBatch(ctx context.Context, namespace string) ([]string, error)
}

// HookRegistry holds the ordered before_store and after_batch hook
// chains. It is read-only during a run; hooks are registered once at
// startup (spec §5 "Hook registry: read-only during a run").
type HookRegistry struct {
	beforeStore []BeforeStoreHook
	afterBatch  []AfterBatchHook
}

// NewHookRegistry returns an empty registry; use RegisterBeforeStore and
// RegisterAfterBatch (or BuildDefaultRegistry) to populate it.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{}
}

// RegisterBeforeStore appends h to the end of the before_store chain.
// Order is significant: hooks run in registration order.
func (r *HookRegistry) RegisterBeforeStore(h BeforeStoreHook) {
	r.beforeStore = append(r.beforeStore, h)
}

// RegisterAfterBatch appends h to the after_batch chain.
func (r *HookRegistry) RegisterAfterBatch(h AfterBatchHook) {
	r.afterBatch = append(r.afterBatch, h)
}

// RunBeforeStore runs every registered before_store hook, in order, over
// entities. It enforces the length-preservation invariant (spec §8:
// "Hooks preserve entity list length and index stability") defensively,
// since a hook bug here would silently break relation resolution.
func (r *HookRegistry) RunBeforeStore(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error) {
	var warnings []string
	before := len(entities)

	for _, h := range r.beforeStore {
		hookWarnings, err := h.Apply(ctx, namespace, entities)
		if err != nil {
			log.Error().Str("hook", h.Name()).Err(err).Msg("canon_hook_failed")
			warnings = append(warnings, fmt.Sprintf("hook %s failed: %v; skipping", h.Name(), err))
			continue
		}
		if len(entities) != before {
			return warnings, fmt.Errorf("canon: hook %s changed entity count from %d to %d", h.Name(), before, len(entities))
		}
		warnings = append(warnings, hookWarnings...)
	}

	return warnings, nil
}

// RunAfterBatch runs every registered after_batch hook, in order.
func (r *HookRegistry) RunAfterBatch(ctx context.Context, namespace string) ([]string, error) {
	var warnings []string
	for _, h := range r.afterBatch {
		hookWarnings, err := h.ApplyBatch(ctx, namespace)
		if err != nil {
			log.Error().Str("hook", h.Name()).Err(err).Msg("canon_after_batch_hook_failed")
			warnings = append(warnings, fmt.Sprintf("after_batch hook %s failed: %v", h.Name(), err))
			continue
		}
		warnings = append(warnings, hookWarnings...)
	}
	return warnings, nil
}
