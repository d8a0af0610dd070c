package canon

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/brunokrugel/kgforge/internal/model"
)

var (
	parenRunRe     = regexp.MustCompile(`\([^)]*\)`)
	nonAlnumRe     = regexp.MustCompile(`[^a-z0-9 \-]+`)
	whitespaceRunE = regexp.MustCompile(`\s+`)
)

// BasicNormalizeHook implements §4.3.1: lowercase, strip parenthesized
// runs, drop non-alphanumeric characters except spaces and hyphens,
// collapse whitespace, trim. Writes NormalizedName; Name is preserved.
type BasicNormalizeHook struct{}

func (BasicNormalizeHook) Name() string { return "normalize_basic" }

func (BasicNormalizeHook) Apply(_ context.Context, _ string, entities []model.ExtractedEntity) ([]string, error) {
	for i := range entities {
		entities[i].NormalizedName = basicNormalize(entities[i].Name)
	}
	return nil, nil
}

func basicNormalize(name string) string {
	s := strings.ToLower(name)
	s = parenRunRe.ReplaceAllString(s, "")
	s = nonAlnumRe.ReplaceAllString(s, "")
	s = whitespaceRunE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DictionaryNormalizeHook implements §4.3.2: loads a `key : expansion`
// dictionary file; when a normalized key matches, rewrites Name to the
// canonical expansion and re-runs basic normalization. A missing file is
// a no-op, not an error — the dictionary is an optional refinement.
type DictionaryNormalizeHook struct {
	dict map[string]string
}

// NewDictionaryNormalizeHook loads path and returns a hook. A missing
// file yields a hook that passes every entity through unchanged; any
// other read error is returned so the caller can decide whether to
// treat it as fatal (the spec only mandates the missing-file case).
func NewDictionaryNormalizeHook(path string) (*DictionaryNormalizeHook, error) {
	h := &DictionaryNormalizeHook{dict: map[string]string{}}
	if path == "" {
		return h, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", path).Msg("canon_dictionary_missing_noop")
			return h, nil
		}
		return nil, fmt.Errorf("canon: opening dictionary %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := basicNormalize(strings.TrimSpace(parts[0]))
		expansion := strings.TrimSpace(parts[1])
		if key == "" || expansion == "" {
			continue
		}
		h.dict[key] = expansion
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("canon: reading dictionary %q: %w", path, err)
	}

	return h, nil
}

func (DictionaryNormalizeHook) Name() string { return "normalize_dictionary" }

func (h *DictionaryNormalizeHook) Apply(_ context.Context, _ string, entities []model.ExtractedEntity) ([]string, error) {
	if len(h.dict) == 0 {
		return nil, nil
	}
	for i := range entities {
		expansion, ok := h.dict[entities[i].NormalizedName]
		if !ok {
			continue
		}
		entities[i].Name = expansion
		entities[i].NormalizedName = basicNormalize(expansion)
	}
	return nil, nil
}
