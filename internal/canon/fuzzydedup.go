package canon

import (
	"context"
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/brunokrugel/kgforge/internal/model"
)

// DefaultFuzzyThreshold is the Jaro-Winkler similarity cutoff used when a
// hook constructor is given a threshold <= 0 (spec §4.3.3).
const DefaultFuzzyThreshold = 0.85

// GraphEntityQuerier is the slice of GraphStore capability the fuzzy and
// vector dedup hooks need: looking up already-persisted entities of a
// given type within a namespace. Kept narrow so these hooks can be unit
// tested against an in-memory fake instead of a live Neo4j instance.
type GraphEntityQuerier interface {
	EntitiesByType(ctx context.Context, namespace, entityType string) ([]model.CanonicalEntity, error)
}

// FuzzyDedupHook implements §4.3.3: for each non-duplicate entity, find
// the same-type, same-namespace graph entity with the highest
// Jaro-Winkler similarity; if it reaches Threshold, mark the entry a
// graph duplicate. Name is folded into that entity's alias set by the
// GraphStore at upsert time, when it writes a DupGraph entry — this hook
// only tags the decision, per the tagged-variant design.
type FuzzyDedupHook struct {
	Graph     GraphEntityQuerier
	Threshold float64
}

// NewFuzzyDedupHook builds the hook with DefaultFuzzyThreshold when
// threshold <= 0.
func NewFuzzyDedupHook(graph GraphEntityQuerier, threshold float64) *FuzzyDedupHook {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &FuzzyDedupHook{Graph: graph, Threshold: threshold}
}

func (h *FuzzyDedupHook) Name() string { return "fuzzy_dedup" }

func (h *FuzzyDedupHook) Apply(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error) {
	var warnings []string

	typeGroups := make(map[string][]model.CanonicalEntity)

	for i := range entities {
		e := &entities[i]
		if e.Dup != model.DupNone {
			continue
		}

		candidates, ok := typeGroups[e.TypeID]
		if !ok {
			fetched, err := h.Graph.EntitiesByType(ctx, namespace, e.TypeID)
			if err != nil {
				warnings = append(warnings, "fuzzy_dedup: query failed for type "+e.TypeID+": "+err.Error())
				typeGroups[e.TypeID] = nil
				continue
			}
			typeGroups[e.TypeID] = fetched
			candidates = fetched
		}
		if len(candidates) == 0 {
			continue
		}

		best, bestScore, found := bestFuzzyMatch(e.NormalizedName, candidates)
		if found && bestScore >= h.Threshold {
			e.Dup = model.DupGraph
			e.DupGraphID = best.ID
		}
	}

	return warnings, nil
}

// bestFuzzyMatch returns the candidate with the highest Jaro-Winkler
// similarity to normalizedName. Ties broken by higher score, then
// lexicographically smaller id (spec §4.3.3).
func bestFuzzyMatch(normalizedName string, candidates []model.CanonicalEntity) (model.CanonicalEntity, float64, bool) {
	type scored struct {
		entity model.CanonicalEntity
		score  float64
	}
	scoredCandidates := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := matchr.JaroWinkler(normalizedName, c.NormalizedName, false)
		scoredCandidates = append(scoredCandidates, scored{entity: c, score: score})
	}
	if len(scoredCandidates) == 0 {
		return model.CanonicalEntity{}, 0, false
	}

	sort.Slice(scoredCandidates, func(i, j int) bool {
		if scoredCandidates[i].score != scoredCandidates[j].score {
			return scoredCandidates[i].score > scoredCandidates[j].score
		}
		return scoredCandidates[i].entity.ID < scoredCandidates[j].entity.ID
	})

	return scoredCandidates[0].entity, scoredCandidates[0].score, true
}
