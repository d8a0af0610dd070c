package canon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/model"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeVectorIndex struct {
	matches []VectorMatch
	added   []string
}

func (f *fakeVectorIndex) SearchSimilar(_ context.Context, _, _ string, _ []float32, _ int) ([]VectorMatch, error) {
	return f.matches, nil
}

func (f *fakeVectorIndex) AddEntity(_ context.Context, id, _, _, _ string, _ []float32) error {
	f.added = append(f.added, id)
	return nil
}

func TestVectorDedupHookMarksDuplicateOnHighScore(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	index := &fakeVectorIndex{matches: []VectorMatch{{ID: "ns:product:atlas", Score: 0.9}}}
	hook := NewVectorDedupHook(embedder, index, 0.85)

	entities := []model.ExtractedEntity{{TypeID: "product", Name: "Atlas", NormalizedName: "atlas"}}
	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupGraph, entities[0].Dup)
	require.Equal(t, "ns:product:atlas", entities[0].DupGraphID)
	require.Empty(t, index.added)
}

func TestVectorDedupHookAddsWhenBelowThreshold(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	index := &fakeVectorIndex{matches: []VectorMatch{{ID: "ns:product:zephyr", Score: 0.2}}}
	hook := NewVectorDedupHook(embedder, index, 0.85)

	entities := []model.ExtractedEntity{{TypeID: "product", Name: "Atlas", NormalizedName: "atlas"}}
	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupNone, entities[0].Dup)
	require.Equal(t, []string{"ns:product:atlas"}, index.added)
}

func TestVectorDedupHookDisablesSelfOnEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("model unavailable")}
	index := &fakeVectorIndex{}
	hook := NewVectorDedupHook(embedder, index, 0.85)

	entities := []model.ExtractedEntity{
		{TypeID: "product", Name: "Atlas", NormalizedName: "atlas"},
		{TypeID: "product", Name: "Zephyr", NormalizedName: "zephyr"},
	}
	warnings, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	// Second call in the same run must pass through untouched: the hook
	// disables itself rather than retrying a known-broken embedder.
	warnings2, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Empty(t, warnings2)
	require.Equal(t, model.DupNone, entities[0].Dup)
}

func TestVectorDedupHookSkipsAlreadyMarkedEntities(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	index := &fakeVectorIndex{matches: []VectorMatch{{ID: "x", Score: 0.99}}}
	hook := NewVectorDedupHook(embedder, index, 0.85)

	entities := []model.ExtractedEntity{
		{TypeID: "product", NormalizedName: "atlas", Dup: model.DupGraph, DupGraphID: "already"},
	}
	_, err := hook.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, "already", entities[0].DupGraphID)
	require.Empty(t, index.added)
}
