package canon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/model"
)

type fakeGraphQuerier struct {
	byType map[string][]model.CanonicalEntity
}

func (f *fakeGraphQuerier) EntitiesByType(_ context.Context, _ string, entityType string) ([]model.CanonicalEntity, error) {
	return f.byType[entityType], nil
}

func TestFuzzyDedupHookMarksCloseMatchAsGraphDuplicate(t *testing.T) {
	graph := &fakeGraphQuerier{byType: map[string][]model.CanonicalEntity{
		"product": {{ID: "ns:product:knowledge discovery", NormalizedName: "knowledge discovery"}},
	}}
	hook := NewFuzzyDedupHook(graph, 0.85)

	entities := []model.ExtractedEntity{
		{TypeID: "product", Name: "Knowledge Discoveries", NormalizedName: "knowledge discoveries"},
	}

	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupGraph, entities[0].Dup)
	require.Equal(t, "ns:product:knowledge discovery", entities[0].DupGraphID)
}

func TestFuzzyDedupHookSkipsAlreadyMarkedEntities(t *testing.T) {
	graph := &fakeGraphQuerier{byType: map[string][]model.CanonicalEntity{
		"product": {{ID: "existing", NormalizedName: "atlas"}},
	}}
	hook := NewFuzzyDedupHook(graph, 0.85)

	entities := []model.ExtractedEntity{
		{TypeID: "product", NormalizedName: "atlas", Dup: model.DupBatch, DupBatchOf: 1},
	}

	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupBatch, entities[0].Dup)
}

func TestFuzzyDedupHookLeavesDissimilarEntityUntouched(t *testing.T) {
	graph := &fakeGraphQuerier{byType: map[string][]model.CanonicalEntity{
		"product": {{ID: "existing", NormalizedName: "atlas"}},
	}}
	hook := NewFuzzyDedupHook(graph, 0.85)

	entities := []model.ExtractedEntity{
		{TypeID: "product", NormalizedName: "zephyr"},
	}

	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupNone, entities[0].Dup)
}
