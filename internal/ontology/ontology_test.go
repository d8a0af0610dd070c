package ontology

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadParsesTypesAndSkipsTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "prompt_template.md", "{{ENTITY_TYPE_DEFINITIONS}}\n{{TEXT}}")
	writeFile(t, dir, "product.md", "# ID: product\n## Name: Product\n## Description\nA shippable product.\n## Relations\nengineering_team : OWNED_BY : OWNS\n## Examples\n- Knowledge Discovery\n")
	writeFile(t, dir, "engineering_team.md", "# ID: engineering_team\n## Name: Engineering Team\n## Relations\nproduct : OWNS : OWNED_BY\n")

	out, err := Load(dir)
	require.NoError(t, err)
	require.Empty(t, out.Warnings)
	require.Len(t, out.Types, 2)

	product := out.Types["product"]
	require.Equal(t, "Product", product.Name)
	require.Equal(t, "A shippable product.", product.Description)
	require.Len(t, product.Relations, 1)
	require.Equal(t, "engineering_team", product.Relations[0].TargetType)
	require.Equal(t, "OWNED_BY", product.Relations[0].ToLabel)
	require.Equal(t, "OWNS", product.Relations[0].FromLabel)
	require.Equal(t, []string{"Knowledge Discovery"}, product.Examples)
}

func TestLoadDefaultsIDToFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "concept.md", "## Name: Concept\n")

	out, err := Load(dir)
	require.NoError(t, err)
	require.Contains(t, out.Types, "concept")
}

func TestLoadWarnsOnMalformedRelationAndDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_first.md", "# ID: dup\n## Relations\nnotarelation\n")
	writeFile(t, dir, "b_second.md", "# ID: dup\n")

	out, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, out.Types, 1)
	require.GreaterOrEqual(t, len(out.Warnings), 2)
}

func TestLoadMissingDirIsFatal(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestAssemblePromptDeterministic(t *testing.T) {
	types := map[string]Type{
		"b": {ID: "b", Raw: "# ID: b\nbravo"},
		"a": {ID: "a", Raw: "# ID: a\nalpha"},
	}
	template := "PREFIX\n" + placeholderTypes + "\nSUFFIX " + placeholderText

	first, err := AssemblePrompt(template, types)
	require.NoError(t, err)
	second, err := AssemblePrompt(template, types)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Contains(t, first, "alpha")
	require.True(t, indexOf(first, "alpha") < indexOf(first, "bravo"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestAssemblePromptRequiresPlaceholder(t *testing.T) {
	_, err := AssemblePrompt("no placeholders here", map[string]Type{})
	require.Error(t, err)
}

func TestSubstituteText(t *testing.T) {
	require.Equal(t, "hello world", SubstituteText("hello "+placeholderText, "world"))
}
