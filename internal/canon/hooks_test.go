package canon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/model"
)

type stubBeforeStoreHook struct {
	name     string
	mutate   func([]model.ExtractedEntity)
	warnings []string
	err      error
}

func (s stubBeforeStoreHook) Name() string { return s.name }

func (s stubBeforeStoreHook) Apply(_ context.Context, _ string, entities []model.ExtractedEntity) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.mutate != nil {
		s.mutate(entities)
	}
	return s.warnings, nil
}

func TestRunBeforeStoreAppliesHooksInOrder(t *testing.T) {
	reg := NewHookRegistry()
	reg.RegisterBeforeStore(stubBeforeStoreHook{
		name: "first",
		mutate: func(e []model.ExtractedEntity) {
			e[0].Name = "first-ran"
		},
	})
	reg.RegisterBeforeStore(stubBeforeStoreHook{
		name: "second",
		mutate: func(e []model.ExtractedEntity) {
			e[0].Name += "-second-ran"
		},
	})

	entities := []model.ExtractedEntity{{Name: "original"}}
	warnings, err := reg.RunBeforeStore(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, "first-ran-second-ran", entities[0].Name)
}

func TestRunBeforeStoreCollectsWarningsAndContinuesOnHookError(t *testing.T) {
	reg := NewHookRegistry()
	reg.RegisterBeforeStore(stubBeforeStoreHook{name: "broken", err: errors.New("boom")})
	reg.RegisterBeforeStore(stubBeforeStoreHook{
		name: "second",
		mutate: func(e []model.ExtractedEntity) {
			e[0].Name = "ran-anyway"
		},
	})

	entities := []model.ExtractedEntity{{Name: "original"}}
	warnings, err := reg.RunBeforeStore(context.Background(), "ns", entities)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Equal(t, "ran-anyway", entities[0].Name)
}
