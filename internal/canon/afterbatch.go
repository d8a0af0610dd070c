package canon

import (
	"context"
	"sort"
	"sync"

	"github.com/antzucaro/matchr"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentListers bounds how many ListEntitiesForMerge calls run at
// once while fetching candidate entities across entity types — a read
// fan-out only; every Merge call below still runs one at a time on the
// caller's goroutine, preserving the single-writer invariant (spec §5).
const maxConcurrentListers = 4

// GlobalEntity is the minimal shape the after_batch dedup hook needs
// from a persisted graph entity to rank merge candidates: identity,
// name, and the tie-break fields from spec §4.6 ("the graph entity with
// higher degree wins; tie -> longer name -> earlier created_at ->
// lexicographic id").
type GlobalEntity struct {
	ID             string
	NormalizedName string
	Name           string
	Degree         int
	CreatedAtUnix  int64
}

// CandidatePair is one pair of same-type entities whose normalized names
// are similar enough to be merge candidates.
type CandidatePair struct {
	A, B       GlobalEntity
	Score      float64
	EntityType string
}

// MergeDecision picks a winner and loser for a CandidatePair.
type MergeDecision struct {
	Winner, Loser GlobalEntity
	EntityType    string
	Score         float64
}

// GraphEntityLister is the read capability the global dedup hook needs:
// every entity of a given type within a namespace, already carrying
// degree and created_at for tie-breaking.
type GraphEntityLister interface {
	ListEntitiesForMerge(ctx context.Context, namespace, entityType string) ([]GlobalEntity, error)
	EntityTypes(ctx context.Context, namespace string) ([]string, error)
}

// Merger applies a decided merge to the graph (spec §4.4 merge(A->B)).
type Merger interface {
	Merge(ctx context.Context, namespace, loserID, winnerID string) error
}

// DecisionPicker lets an interactive session override the automatic
// tie-break for a candidate pair. A nil DecisionPicker means
// non-interactive mode: PickWinner is never consulted.
type DecisionPicker interface {
	PickWinner(ctx context.Context, pair CandidatePair) (GlobalEntity, error)
}

// GlobalFuzzyDedupHook implements the after_batch hook named in §4.6:
// global fuzzy dedup across an entire namespace, run once per batch
// rather than per document.
type GlobalFuzzyDedupHook struct {
	Lister    GraphEntityLister
	Merge     Merger
	Picker    DecisionPicker
	Threshold float64
}

// NewGlobalFuzzyDedupHook builds the hook with DefaultFuzzyThreshold when
// threshold <= 0. Picker may be nil for non-interactive runs.
func NewGlobalFuzzyDedupHook(lister GraphEntityLister, merger Merger, picker DecisionPicker, threshold float64) *GlobalFuzzyDedupHook {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &GlobalFuzzyDedupHook{Lister: lister, Merge: merger, Picker: picker, Threshold: threshold}
}

func (h *GlobalFuzzyDedupHook) Name() string { return "global_fuzzy_dedup" }

func (h *GlobalFuzzyDedupHook) ApplyBatch(ctx context.Context, namespace string) ([]string, error) {
	var warnings []string

	types, err := h.Lister.EntityTypes(ctx, namespace)
	if err != nil {
		return warnings, err
	}

	byType, listWarnings := h.listCandidatesByType(ctx, namespace, types)
	warnings = append(warnings, listWarnings...)

	for _, entityType := range types {
		entities := byType[entityType]
		merged := make(map[string]bool)
		for i := 0; i < len(entities); i++ {
			if merged[entities[i].ID] {
				continue
			}
			for j := i + 1; j < len(entities); j++ {
				if merged[entities[j].ID] {
					continue
				}
				score := matchr.JaroWinkler(entities[i].NormalizedName, entities[j].NormalizedName, false)
				if score < h.Threshold {
					continue
				}

				pair := CandidatePair{A: entities[i], B: entities[j], Score: score, EntityType: entityType}
				decision, err := h.decide(ctx, pair)
				if err != nil {
					warnings = append(warnings, "global_fuzzy_dedup: decision failed for "+entities[i].ID+"/"+entities[j].ID+": "+err.Error())
					continue
				}

				if err := h.Merge.Merge(ctx, namespace, decision.Loser.ID, decision.Winner.ID); err != nil {
					warnings = append(warnings, "global_fuzzy_dedup: merge failed for "+decision.Loser.ID+"->"+decision.Winner.ID+": "+err.Error())
					continue
				}
				merged[decision.Loser.ID] = true
				if decision.Loser.ID == entities[i].ID {
					// entities[i] no longer exists in the graph; further j
					// candidates must be compared against the surviving
					// winner on a later outer pass, not against this
					// deleted node.
					break
				}
			}
		}
	}

	return warnings, nil
}

// listCandidatesByType fetches each entity type's candidate list
// concurrently, bounded by maxConcurrentListers — these are independent
// reads against the graph store, so there is nothing to serialize them
// for. A failed listing for one type becomes a warning rather than an
// aborted batch: the other types' dedup still proceeds.
func (h *GlobalFuzzyDedupHook) listCandidatesByType(ctx context.Context, namespace string, types []string) (map[string][]GlobalEntity, []string) {
	results := make(map[string][]GlobalEntity, len(types))
	var warnings []string
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentListers)

	for _, entityType := range types {
		entityType := entityType
		g.Go(func() error {
			entities, err := h.Lister.ListEntitiesForMerge(gctx, namespace, entityType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				warnings = append(warnings, "global_fuzzy_dedup: listing "+entityType+" failed: "+err.Error())
				return nil
			}
			results[entityType] = entities
			return nil
		})
	}
	_ = g.Wait() // errors are collected as warnings above, never returned

	return results, warnings
}

func (h *GlobalFuzzyDedupHook) decide(ctx context.Context, pair CandidatePair) (MergeDecision, error) {
	if h.Picker != nil {
		winner, err := h.Picker.PickWinner(ctx, pair)
		if err != nil {
			return MergeDecision{}, err
		}
		loser := pair.A
		if winner.ID == pair.A.ID {
			loser = pair.B
		}
		return MergeDecision{Winner: winner, Loser: loser, EntityType: pair.EntityType, Score: pair.Score}, nil
	}

	winner, loser := rankCandidates(pair.A, pair.B)
	return MergeDecision{Winner: winner, Loser: loser, EntityType: pair.EntityType, Score: pair.Score}, nil
}

// rankCandidates applies the non-interactive tie-break law from §4.6:
// higher degree wins; tie -> longer name -> earlier created_at ->
// lexicographic id.
func rankCandidates(a, b GlobalEntity) (winner, loser GlobalEntity) {
	pair := []GlobalEntity{a, b}
	sort.Slice(pair, func(i, j int) bool {
		if pair[i].Degree != pair[j].Degree {
			return pair[i].Degree > pair[j].Degree
		}
		if len(pair[i].Name) != len(pair[j].Name) {
			return len(pair[i].Name) > len(pair[j].Name)
		}
		if pair[i].CreatedAtUnix != pair[j].CreatedAtUnix {
			return pair[i].CreatedAtUnix < pair[j].CreatedAtUnix
		}
		return pair[i].ID < pair[j].ID
	})
	return pair[0], pair[1]
}
