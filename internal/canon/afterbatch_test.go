package canon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGraphEntityLister struct {
	types    []string
	entities map[string][]GlobalEntity
}

func (f *fakeGraphEntityLister) EntityTypes(_ context.Context, _ string) ([]string, error) {
	return f.types, nil
}

func (f *fakeGraphEntityLister) ListEntitiesForMerge(_ context.Context, _ string, entityType string) ([]GlobalEntity, error) {
	return f.entities[entityType], nil
}

type recordingMerger struct {
	merges [][2]string // [loser, winner]
}

func (m *recordingMerger) Merge(_ context.Context, _ string, loserID, winnerID string) error {
	m.merges = append(m.merges, [2]string{loserID, winnerID})
	return nil
}

func TestGlobalFuzzyDedupHookMergesHigherDegreeWins(t *testing.T) {
	lister := &fakeGraphEntityLister{
		types: []string{"product"},
		entities: map[string][]GlobalEntity{
			"product": {
				{ID: "b", NormalizedName: "knowledge discovery", Name: "Knowledge Discovery", Degree: 5},
				{ID: "a", NormalizedName: "knowledge discoveries", Name: "Knowledge Discoveries", Degree: 1},
			},
		},
	}
	merger := &recordingMerger{}
	hook := NewGlobalFuzzyDedupHook(lister, merger, nil, 0.85)

	warnings, err := hook.ApplyBatch(context.Background(), "ns")
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, merger.merges, 1)
	require.Equal(t, "a", merger.merges[0][0])
	require.Equal(t, "b", merger.merges[0][1])
}

func TestGlobalFuzzyDedupHookHandlesTransitiveChainWithoutMergingDeletedLoser(t *testing.T) {
	// e0 and e1 are mutual candidates, and so are e1 and e2; e0 and e1
	// are compared first (index order), e1 wins on degree, so e0 is
	// deleted before e2 is ever considered. The inner loop must stop
	// pairing e0 against further candidates once e0 has been merged
	// away, and e2 must still get a chance to merge into the surviving
	// e1 on a later outer pass.
	e0 := GlobalEntity{ID: "e0", NormalizedName: "acme corporation", Degree: 1}
	e1 := GlobalEntity{ID: "e1", NormalizedName: "acme corporations", Degree: 10}
	e2 := GlobalEntity{ID: "e2", NormalizedName: "acme corporatio", Degree: 1}

	lister := &fakeGraphEntityLister{
		types:    []string{"product"},
		entities: map[string][]GlobalEntity{"product": {e0, e1, e2}},
	}
	merger := &recordingMerger{}
	hook := NewGlobalFuzzyDedupHook(lister, merger, nil, 0.85)

	warnings, err := hook.ApplyBatch(context.Background(), "ns")
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, merger.merges, 2)

	for _, m := range merger.merges {
		require.NotEqual(t, "e0", m[1], "e0 was already deleted and must never be recorded as a merge winner")
	}
	require.Equal(t, "e0", merger.merges[0][0])
	require.Equal(t, "e1", merger.merges[0][1])
	require.Equal(t, "e2", merger.merges[1][0])
	require.Equal(t, "e1", merger.merges[1][1])
}

func TestGlobalFuzzyDedupHookSkipsDissimilarPairs(t *testing.T) {
	lister := &fakeGraphEntityLister{
		types: []string{"product"},
		entities: map[string][]GlobalEntity{
			"product": {
				{ID: "a", NormalizedName: "atlas", Degree: 1},
				{ID: "b", NormalizedName: "zephyr", Degree: 1},
			},
		},
	}
	merger := &recordingMerger{}
	hook := NewGlobalFuzzyDedupHook(lister, merger, nil, 0.85)

	_, err := hook.ApplyBatch(context.Background(), "ns")
	require.NoError(t, err)
	require.Empty(t, merger.merges)
}

type fixedPicker struct {
	winner GlobalEntity
}

func (p fixedPicker) PickWinner(_ context.Context, _ CandidatePair) (GlobalEntity, error) {
	return p.winner, nil
}

func TestGlobalFuzzyDedupHookInteractivePickerOverridesAutoRank(t *testing.T) {
	low := GlobalEntity{ID: "low-degree", NormalizedName: "atlas", Degree: 1}
	high := GlobalEntity{ID: "high-degree", NormalizedName: "atlass", Degree: 10}

	lister := &fakeGraphEntityLister{
		types:    []string{"product"},
		entities: map[string][]GlobalEntity{"product": {low, high}},
	}
	merger := &recordingMerger{}
	hook := NewGlobalFuzzyDedupHook(lister, merger, fixedPicker{winner: low}, 0.85)

	_, err := hook.ApplyBatch(context.Background(), "ns")
	require.NoError(t, err)
	require.Len(t, merger.merges, 1)
	require.Equal(t, "high-degree", merger.merges[0][0])
	require.Equal(t, "low-degree", merger.merges[0][1])
}
