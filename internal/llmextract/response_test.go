package llmextract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseResponsePlainJSON(t *testing.T) {
	raw := `{
		"entities": [
			{"type_id": "product", "name": "Atlas", "confidence": 0.9},
			{"type_id": "engineering_team", "name": "Platform", "confidence": 0.8}
		],
		"relations": [
			{"from_entity": 0, "to_entity": 1, "type": "OWNED_BY", "confidence": 0.7}
		]
	}`

	result, warnings, err := ParseResponse("doc-1", raw)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, result.Entities, 2)
	require.Equal(t, "Atlas", result.Entities[0].Name)
	require.Len(t, result.Relations, 1)
	require.Equal(t, 0, result.Relations[0].FromEntity)
	require.Equal(t, 1, result.Relations[0].ToEntity)
}

func TestParseResponseFencedCodeBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"entities\":[{\"type_id\":\"product\",\"name\":\"Atlas\"}],\"relations\":[]}\n```\nThanks."

	result, warnings, err := ParseResponse("doc-2", raw)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, result.Entities, 1)
}

func TestParseResponseDropsOutOfRangeRelation(t *testing.T) {
	raw := `{
		"entities": [{"type_id": "product", "name": "Atlas"}],
		"relations": [{"from_entity": 0, "to_entity": 5, "type": "OWNED_BY"}]
	}`

	result, warnings, err := ParseResponse("doc-3", raw)
	require.NoError(t, err)
	require.Empty(t, result.Relations)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "out-of-range")
}

func TestParseResponseMalformedRelationEntityCount(t *testing.T) {
	// Scenario from the malformed-relation end-to-end case: 3 entities,
	// a relation pointing at index 7.
	raw := `{
		"entities": [
			{"type_id": "product", "name": "A"},
			{"type_id": "product", "name": "B"},
			{"type_id": "product", "name": "C"}
		],
		"relations": [{"from_entity": 7, "to_entity": 0, "type": "uses"}]
	}`

	result, warnings, err := ParseResponse("doc-4", raw)
	require.NoError(t, err)
	require.Len(t, result.Entities, 3)
	require.Empty(t, result.Relations)
	require.Len(t, warnings, 1)
}

func TestParseResponseMalformedJSON(t *testing.T) {
	_, _, err := ParseResponse("doc-5", "not json at all")
	require.Error(t, err)
}
