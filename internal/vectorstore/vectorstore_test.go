package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectionNameIsNamespaceScoped(t *testing.T) {
	require.Equal(t, "kgforge_acme", collectionName("acme"))
	require.NotEqual(t, collectionName("acme"), collectionName("beta"))
}

func TestPointIDIsDeterministicForNonUUIDInput(t *testing.T) {
	a := pointID("acme:product:atlas")
	b := pointID("acme:product:atlas")
	require.Equal(t, a.GetUuid(), b.GetUuid())
	require.NotEmpty(t, a.GetUuid())
}

func TestPointIDPreservesExistingUUID(t *testing.T) {
	uuidStr := "123e4567-e89b-12d3-a456-426614174000"
	p := pointID(uuidStr)
	require.Equal(t, uuidStr, p.GetUuid())
}
