// Package ontology loads a directory of markdown entity-type definitions
// and assembles the prompt fed to the LLM extractor (spec §4.1).
package ontology

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	placeholderTypes = "{{ENTITY_TYPE_DEFINITIONS}}"
	placeholderText  = "{{TEXT}}"
)

var excludedFilenames = map[string]bool{
	"prompt_template.md": true,
	"readme.md":          true,
}

// Relation is one allowed outgoing relation for a Type, as declared by the
// type that defines it (the canonical edge direction, §4.3/§9).
type Relation struct {
	TargetType string
	ToLabel    string
	FromLabel  string
}

// Type is a single ontology entity-type definition.
type Type struct {
	ID          string
	Name        string
	Description string
	Relations   []Relation
	Examples    []string

	// Raw holds the original markdown for this type, used for deterministic
	// prompt assembly (concatenation of raw sections in sorted ID order).
	Raw string

	SourceFile string
}

// LoadOutcome mirrors the teacher's skills.LoadOutcome shape: successes and
// warnings are both first-class, because individual parse errors must not
// fail the run (spec §4.1/§7).
type LoadOutcome struct {
	Types    map[string]Type
	Warnings []string
}

var relationLineRe = regexp.MustCompile(`^\s*([^:]+?)\s*:\s*([^:]+?)\s*:\s*(.+?)\s*$`)

// Load parses every eligible markdown file in dir into ontology Types.
// A missing directory is a fatal error for the caller to surface as exit 1
// (spec §4.1/§7); individual malformed files are skipped with a warning.
func Load(dir string) (LoadOutcome, error) {
	var out LoadOutcome
	out.Types = make(map[string]Type)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return out, fmt.Errorf("ontology: directory %q not found: %w", dir, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out, fmt.Errorf("ontology: reading directory %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
			continue
		}
		if excludedFilenames[strings.ToLower(e.Name())] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	for _, name := range files {
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			msg := fmt.Sprintf("ontology: skipping %s: %v", name, err)
			log.Warn().Str("file", name).Err(err).Msg("ontology_read_failed")
			out.Warnings = append(out.Warnings, msg)
			continue
		}

		t, warnings, err := parseType(string(raw), name)
		for _, w := range warnings {
			log.Warn().Str("file", name).Msg(w)
			out.Warnings = append(out.Warnings, w)
		}
		if err != nil {
			msg := fmt.Sprintf("ontology: skipping %s: %v", name, err)
			log.Warn().Str("file", name).Err(err).Msg("ontology_parse_failed")
			out.Warnings = append(out.Warnings, msg)
			continue
		}

		if _, exists := out.Types[t.ID]; exists {
			msg := fmt.Sprintf("ontology: duplicate type id %q in %s, last wins", t.ID, name)
			log.Warn().Str("type_id", t.ID).Str("file", name).Msg("ontology_duplicate_id")
			out.Warnings = append(out.Warnings, msg)
		}
		out.Types[t.ID] = t
	}

	return out, nil
}

// sectionKind enumerates the recognized headings, line-oriented and lenient
// per spec §4.1.
type sectionKind int

const (
	secNone sectionKind = iota
	secDescription
	secRelations
	secExamples
)

func parseType(raw, filename string) (Type, []string, error) {
	var t Type
	t.SourceFile = filename
	t.Raw = raw

	var warnings []string
	section := secNone
	var descLines []string

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "# ID:"):
			t.ID = strings.TrimSpace(strings.TrimPrefix(trimmed, "# ID:"))
			section = secNone
			continue
		case strings.HasPrefix(trimmed, "## Name:"):
			t.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "## Name:"))
			section = secNone
			continue
		case strings.HasPrefix(trimmed, "## Description"):
			section = secDescription
			continue
		case strings.HasPrefix(trimmed, "## Relations"):
			section = secRelations
			continue
		case strings.HasPrefix(trimmed, "## Examples"):
			section = secExamples
			continue
		case strings.HasPrefix(trimmed, "#"):
			// Unrecognized heading: stop attributing to any known section.
			section = secNone
			continue
		}

		if trimmed == "" {
			continue
		}

		switch section {
		case secDescription:
			descLines = append(descLines, trimmed)
		case secRelations:
			rel, ok := parseRelationLine(trimmed)
			if !ok {
				warnings = append(warnings, fmt.Sprintf("malformed relation line %q", trimmed))
				continue
			}
			t.Relations = append(t.Relations, rel)
		case secExamples:
			t.Examples = append(t.Examples, strings.TrimPrefix(trimmed, "- "))
		}
	}
	if err := scanner.Err(); err != nil {
		return t, warnings, err
	}

	t.Description = strings.Join(descLines, " ")

	if t.ID == "" {
		// Type ID defaults to the filename (without extension) when absent.
		t.ID = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if t.Name == "" {
		t.Name = t.ID
	}

	return t, warnings, nil
}

func parseRelationLine(line string) (Relation, bool) {
	m := relationLineRe.FindStringSubmatch(line)
	if len(m) != 4 {
		return Relation{}, false
	}
	return Relation{
		TargetType: strings.TrimSpace(m[1]),
		ToLabel:    strings.TrimSpace(m[2]),
		FromLabel:  strings.TrimSpace(m[3]),
	}, true
}

// RelationFor looks up the Relation a type declares toward targetType, used
// by the graph store to resolve the canonical edge label and direction
// (spec §3/§9: direction is derived from the type that defines the relation).
func (t Type) RelationFor(targetType string) (Relation, bool) {
	for _, r := range t.Relations {
		if strings.EqualFold(r.TargetType, targetType) {
			return r, true
		}
	}
	return Relation{}, false
}

// AssemblePrompt concatenates the raw markdown of every type in sorted ID
// order and substitutes it into template at {{ENTITY_TYPE_DEFINITIONS}}.
// The result still contains {{TEXT}} for per-document substitution.
// Assembly is deterministic: identical Types + template always yield a
// byte-identical prompt (spec §4.1, testable property in spec §8).
func AssemblePrompt(template string, types map[string]Type) (string, error) {
	if !strings.Contains(template, placeholderTypes) {
		return "", fmt.Errorf("ontology: prompt template missing %s placeholder", placeholderTypes)
	}

	ids := make([]string, 0, len(types))
	for id := range types {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimRight(types[id].Raw, "\n"))
	}

	return strings.Replace(template, placeholderTypes, b.String(), 1), nil
}

// SubstituteText fills in the {{TEXT}} placeholder for one document.
func SubstituteText(prompt, text string) string {
	return strings.Replace(prompt, placeholderText, text, 1)
}
