package llmextract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/brunokrugel/kgforge/internal/model"
)

// rawEntity and rawRelation mirror the strict JSON extraction protocol
// (spec §4.2): relations reference entities by index into the entities
// array, never by name, so that canonicalization hooks can rewrite names
// in place without invalidating relations (I5).
type rawEntity struct {
	TypeID     string   `json:"type_id"`
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases"`
	Evidence   string   `json:"evidence"`
	Confidence float64  `json:"confidence"`
}

type rawRelation struct {
	FromEntity int     `json:"from_entity"`
	ToEntity   int     `json:"to_entity"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

type rawResponse struct {
	Entities  []rawEntity   `json:"entities"`
	Relations []rawRelation `json:"relations"`
}

// ParseWarning is a non-fatal issue found while parsing a response, such as
// a relation whose index falls outside the entities array.
type ParseWarning struct {
	DocID   string
	Message string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s: %s", w.DocID, w.Message)
}

// ParseResponse extracts the strict-JSON payload from a model's raw text
// reply. The model is prompted to return only JSON, but real responses
// sometimes wrap it in a fenced code block or add leading/trailing prose;
// both are tolerated. Relations with an out-of-range index are dropped
// with a warning rather than failing the whole document (spec §4.2, §7).
func ParseResponse(docID, raw string) (model.ExtractionResult, []ParseWarning, error) {
	body := extractJSONBody(raw)

	var parsed rawResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return model.ExtractionResult{}, nil, fmt.Errorf("llmextract: parse response for %s: %w", docID, err)
	}

	result := model.ExtractionResult{
		Entities: make([]model.ExtractedEntity, 0, len(parsed.Entities)),
	}
	for _, e := range parsed.Entities {
		result.Entities = append(result.Entities, model.ExtractedEntity{
			TypeID:     e.TypeID,
			Name:       e.Name,
			Aliases:    e.Aliases,
			Evidence:   e.Evidence,
			Confidence: e.Confidence,
		})
	}

	var warnings []ParseWarning
	n := len(result.Entities)
	for _, r := range parsed.Relations {
		if r.FromEntity < 0 || r.FromEntity >= n || r.ToEntity < 0 || r.ToEntity >= n {
			warnings = append(warnings, ParseWarning{
				DocID:   docID,
				Message: fmt.Sprintf("relation %q references out-of-range entity index (from=%d, to=%d, n=%d), dropped", r.Type, r.FromEntity, r.ToEntity, n),
			})
			continue
		}
		result.Relations = append(result.Relations, model.ExtractedRelation{
			FromEntity: r.FromEntity,
			ToEntity:   r.ToEntity,
			Type:       r.Type,
			Confidence: r.Confidence,
			Evidence:   r.Evidence,
		})
	}

	return result, warnings, nil
}

// extractJSONBody strips a surrounding ```json fenced block or leading/
// trailing prose, returning the outermost {...} span it can find (first
// "{" through last "}").
func extractJSONBody(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		if len(lines) > 1 {
			lines = lines[1:]
		}
		s = strings.Join(lines, "\n")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
