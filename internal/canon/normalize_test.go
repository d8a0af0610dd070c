package canon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/model"
)

func TestBasicNormalizeHook(t *testing.T) {
	entities := []model.ExtractedEntity{
		{Name: "Knowledge Discovery (KD)"},
		{Name: "  Platform   Engineering!! "},
	}

	_, err := (BasicNormalizeHook{}).Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, "knowledge discovery", entities[0].NormalizedName)
	require.Equal(t, "platform engineering", entities[1].NormalizedName)
	require.Equal(t, "Knowledge Discovery (KD)", entities[0].Name)
}

func TestDictionaryNormalizeHookMissingFileIsNoop(t *testing.T) {
	h, err := NewDictionaryNormalizeHook(filepath.Join(t.TempDir(), "missing.dict"))
	require.NoError(t, err)

	entities := []model.ExtractedEntity{{Name: "KD", NormalizedName: "kd"}}
	_, err = h.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, "KD", entities[0].Name)
}

func TestDictionaryNormalizeHookExpandsAndRenormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("kd : Knowledge Discovery\n"), 0o644))

	h, err := NewDictionaryNormalizeHook(path)
	require.NoError(t, err)

	entities := []model.ExtractedEntity{{Name: "KD", NormalizedName: "kd"}}
	_, err = h.Apply(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Equal(t, "Knowledge Discovery", entities[0].Name)
	require.Equal(t, "knowledge discovery", entities[0].NormalizedName)
}
