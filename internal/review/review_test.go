package review

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/canon"
	"github.com/brunokrugel/kgforge/internal/model"
)

func TestReviewDeleteTombstonesEntry(t *testing.T) {
	entities := []model.ExtractedEntity{
		{TypeID: "product", Name: "Atlas"},
		{TypeID: "product", Name: "Atlas Platform"},
	}
	in := strings.NewReader("delete 0\ndone\n")
	var out bytes.Buffer
	s := NewSession(in, &out)

	got, err := s.Review(context.Background(), "doc-1", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupTombstone, got[0].Dup)
	require.Equal(t, model.DupNone, got[1].Dup)
}

func TestReviewMergeSetsDupBatchOf(t *testing.T) {
	entities := []model.ExtractedEntity{
		{TypeID: "product", Name: "Atlas"},
		{TypeID: "product", Name: "Atlas Platform"},
	}
	in := strings.NewReader("merge 0 1\ndone\n")
	var out bytes.Buffer
	s := NewSession(in, &out)

	got, err := s.Review(context.Background(), "doc-1", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupBatch, got[0].Dup)
	require.Equal(t, 1, got[0].DupBatchOf)
}

func TestReviewMergeRejectsDifferentEntityTypes(t *testing.T) {
	entities := []model.ExtractedEntity{
		{TypeID: "product", Name: "Atlas"},
		{TypeID: "engineering_team", Name: "Platform Team"},
	}
	in := strings.NewReader("merge 0 1\ndone\n")
	var out bytes.Buffer
	s := NewSession(in, &out)

	got, err := s.Review(context.Background(), "doc-1", entities)
	require.NoError(t, err)
	require.Equal(t, model.DupNone, got[0].Dup)
	require.Contains(t, out.String(), "same entity_type")
}

func TestReviewEditUpdatesNameAndNormalizedName(t *testing.T) {
	entities := []model.ExtractedEntity{{TypeID: "product", Name: "Atlas"}}
	in := strings.NewReader("edit 0 Atlas Core\ndone\n")
	var out bytes.Buffer
	s := NewSession(in, &out)

	got, err := s.Review(context.Background(), "doc-1", entities)
	require.NoError(t, err)
	require.Equal(t, "Atlas Core", got[0].Name)
	require.Equal(t, "atlas core", got[0].NormalizedName)
}

func TestReviewEndsWhenInputExhausted(t *testing.T) {
	entities := []model.ExtractedEntity{{TypeID: "product", Name: "Atlas"}}
	in := strings.NewReader("")
	var out bytes.Buffer
	s := NewSession(in, &out)

	got, err := s.Review(context.Background(), "doc-1", entities)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestPickWinnerReturnsSelectedEntity(t *testing.T) {
	pair := canon.CandidatePair{
		A:          canon.GlobalEntity{ID: "a", Name: "Atlas"},
		B:          canon.GlobalEntity{ID: "b", Name: "Atlas Platform"},
		Score:      0.9,
		EntityType: "product",
	}
	in := strings.NewReader("2\n")
	var out bytes.Buffer
	s := NewSession(in, &out)

	winner, err := s.PickWinner(context.Background(), pair)
	require.NoError(t, err)
	require.Equal(t, "b", winner.ID)
}
