package canon

// DefaultWiringConfig carries the thresholds and collaborators needed to
// assemble the canonical hook chain in its required order: basic
// normalization -> dictionary normalization -> fuzzy dedup -> vector
// dedup (spec §2 diagram, §4.3).
type DefaultWiringConfig struct {
	DictionaryPath   string
	FuzzyThreshold   float64
	VectorThreshold  float64
	Graph            GraphEntityQuerier
	Embedder         Embedder // nil disables vector dedup entirely
	Vectors          VectorIndex
	GlobalLister     GraphEntityLister
	GlobalMerger     Merger
	InteractivePicker DecisionPicker // nil for non-interactive runs
}

// BuildDefaultRegistry registers the four before_store hooks in
// canonical order and the global fuzzy after_batch hook. The vector
// dedup hook is omitted entirely when cfg.Embedder is nil, matching the
// "vector model unavailable -> fuzzy-only pipeline" boundary behavior
// (spec §8) without needing a runtime failure to trigger it.
func BuildDefaultRegistry(cfg DefaultWiringConfig) (*HookRegistry, error) {
	reg := NewHookRegistry()

	reg.RegisterBeforeStore(BasicNormalizeHook{})

	dict, err := NewDictionaryNormalizeHook(cfg.DictionaryPath)
	if err != nil {
		return nil, err
	}
	reg.RegisterBeforeStore(dict)

	if cfg.Graph != nil {
		reg.RegisterBeforeStore(NewFuzzyDedupHook(cfg.Graph, cfg.FuzzyThreshold))
	}

	if cfg.Embedder != nil && cfg.Vectors != nil {
		reg.RegisterBeforeStore(NewVectorDedupHook(cfg.Embedder, cfg.Vectors, cfg.VectorThreshold))
	}

	if cfg.GlobalLister != nil && cfg.GlobalMerger != nil {
		reg.RegisterAfterBatch(NewGlobalFuzzyDedupHook(cfg.GlobalLister, cfg.GlobalMerger, cfg.InteractivePicker, cfg.FuzzyThreshold))
	}

	return reg, nil
}
