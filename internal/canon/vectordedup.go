package canon

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/brunokrugel/kgforge/internal/model"
)

// DefaultVectorThreshold is the cosine-similarity cutoff used when
// NewVectorDedupHook is given a threshold <= 0 (spec §4.3.4).
const DefaultVectorThreshold = 0.85

// Embedder produces a fixed-dimensionality embedding for a piece of
// text. Concrete implementations (sentence-embedding models) live
// outside this package; canon only depends on the capability.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorMatch is one nearest-neighbor hit from a VectorIndex search.
type VectorMatch struct {
	ID    string
	Score float64 // cosine similarity, [0,1], already converted from distance
}

// VectorIndex is the slice of vector-sidecar capability the dedup hook
// needs: nearest-neighbor search scoped to (namespace, entity_type), and
// adding a new embedding once an entity is confirmed non-duplicate.
type VectorIndex interface {
	SearchSimilar(ctx context.Context, namespace, entityType string, embedding []float32, limit int) ([]VectorMatch, error)
	AddEntity(ctx context.Context, id, namespace, entityType, entityName string, embedding []float32) error
}

// VectorDedupHook implements §4.3.4. Unless an entity is already marked a
// duplicate by an earlier hook, it embeds NormalizedName and searches the
// namespaced, type-filtered vector collection for a nearest neighbor; a
// score at or above Threshold marks the entity a graph duplicate,
// otherwise the embedding is added to the sidecar under the deterministic
// id "namespace:entity_type:normalized_name".
//
// If the embedder fails (model unavailable), the hook disables itself
// for the remainder of the run and every subsequent entity passes
// through unmodified — the pipeline continues with fuzzy dedup only
// (spec §7 "Vector model load failure").
type VectorDedupHook struct {
	Embedder Embedder
	Index    VectorIndex
	Threshold float64

	mu       sync.Mutex
	disabled bool
}

// NewVectorDedupHook builds the hook with DefaultVectorThreshold when
// threshold <= 0.
func NewVectorDedupHook(embedder Embedder, index VectorIndex, threshold float64) *VectorDedupHook {
	if threshold <= 0 {
		threshold = DefaultVectorThreshold
	}
	return &VectorDedupHook{Embedder: embedder, Index: index, Threshold: threshold}
}

func (h *VectorDedupHook) Name() string { return "vector_dedup" }

func (h *VectorDedupHook) Apply(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error) {
	var warnings []string

	h.mu.Lock()
	disabled := h.disabled
	h.mu.Unlock()
	if disabled {
		return warnings, nil
	}

	for i := range entities {
		e := &entities[i]
		if e.Dup != model.DupNone {
			continue
		}

		embedding, err := h.Embedder.Embed(ctx, e.NormalizedName)
		if err != nil {
			h.mu.Lock()
			h.disabled = true
			h.mu.Unlock()
			log.Error().Err(err).Msg("canon_vector_dedup_disabled")
			warnings = append(warnings, "vector_dedup: embedder unavailable, disabled for remainder of run: "+err.Error())
			return warnings, nil
		}

		matches, err := h.Index.SearchSimilar(ctx, namespace, e.TypeID, embedding, 1)
		if err != nil {
			warnings = append(warnings, "vector_dedup: search failed for "+e.Name+": "+err.Error())
			continue
		}

		if len(matches) > 0 && matches[0].Score >= h.Threshold {
			e.Dup = model.DupGraph
			e.DupGraphID = matches[0].ID
			continue
		}

		id := namespace + ":" + e.TypeID + ":" + e.NormalizedName
		if err := h.Index.AddEntity(ctx, id, namespace, e.TypeID, e.Name, embedding); err != nil {
			warnings = append(warnings, "vector_dedup: add failed for "+e.Name+": "+err.Error())
		}
	}

	return warnings, nil
}
