// Package orchestrator drives the single-threaded batch loop over a
// corpus of HTML documents: discovery, per-document extraction and
// canonicalization, graph persistence, and after-batch global dedup
// (spec §4.6, §5). Grounded on
// intelligencedev-manifold/internal/orchestrator/handler.go's per-item
// handling shape (transient-vs-permanent error classification, a
// counters-driven success/failure path per unit of work), adapted from
// a per-Kafka-message handler to a per-document loop since this domain
// has no message broker.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brunokrugel/kgforge/internal/graphstore"
	"github.com/brunokrugel/kgforge/internal/htmldoc"
	"github.com/brunokrugel/kgforge/internal/llmextract"
	"github.com/brunokrugel/kgforge/internal/model"
	"github.com/brunokrugel/kgforge/internal/ontology"
)

// ErrAborted is returned by Run when the consecutive-failure threshold
// was exceeded (spec §7: "Consecutive failures > N -> Abort run
// (exit 2)"). cmd/ingest maps this to exit code 2.
var ErrAborted = errors.New("orchestrator: consecutive failure threshold exceeded, run aborted")

// Extractor is the subset of llmextract.LLMExtractor the orchestrator
// needs; narrowed to an interface so tests can substitute a fake.
type Extractor interface {
	Extract(ctx context.Context, doc model.Document) (model.ExtractionResult, []llmextract.ParseWarning, error)
}

// Hooks is the subset of canon.HookRegistry the orchestrator drives.
type Hooks interface {
	RunBeforeStore(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error)
	RunAfterBatch(ctx context.Context, namespace string) ([]string, error)
}

// GraphStore is the subset of graphstore.GraphStore the orchestrator
// needs.
type GraphStore interface {
	GetDocumentState(ctx context.Context, namespace, docID string) (graphstore.DocumentState, error)
	UpsertDocument(ctx context.Context, doc model.Document, entities []model.ExtractedEntity, relations []model.ExtractedRelation, types map[string]ontology.Type) (graphstore.UpsertResult, error)
}

// Reviewer implements the optional interactive review session (spec
// §4.3.5). A nil Reviewer on the Orchestrator disables the step
// entirely, independent of Config.Interactive, so tests never need a
// terminal.
type Reviewer interface {
	Review(ctx context.Context, docID string, entities []model.ExtractedEntity) ([]model.ExtractedEntity, error)
}

// ParseFunc parses one source file into a Document. The default is
// htmldoc.Parse; tests inject a fake to avoid real files.
type ParseFunc func(path, docID, namespace string) (model.Document, error)

// Config holds the per-run knobs named in spec §6 (`ingest` command
// options).
type Config struct {
	SourceDir     string
	Namespace     string
	DryRun        bool
	Refresh       bool
	Interactive   bool
	SkipProcessed bool
	MaxBatchDocs  int // 0 means unlimited
	MaxFailures   int // 0 means use DefaultMaxFailures
}

// DefaultMaxFailures mirrors the spec's documented default (§4.2).
// The abort check below fires once consecutiveFailures reaches
// MaxFailures, i.e. on the MaxFailures'th consecutive failure — read as
// "MaxFailures is the number of consecutive failures the run tolerates",
// not "one more than that".
const DefaultMaxFailures = 10

// Statistics is the run summary the spec names verbatim in §4.6.
type Statistics struct {
	Total                int
	Processed            int
	Skipped              int
	Failed               int
	EntitiesCreated      int
	RelationshipsCreated int
	DurationSeconds      float64
	SuccessRate          float64
	Errors               []string
}

// Orchestrator wires every component of the pipeline together and runs
// the batch loop.
type Orchestrator struct {
	Config    Config
	Extractor Extractor
	Hooks     Hooks
	Graph     GraphStore
	Types     map[string]ontology.Type
	Reviewer  Reviewer
	Parse     ParseFunc
}

// New builds an Orchestrator with htmldoc.Parse as the default document
// parser.
func New(cfg Config, extractor Extractor, hooks Hooks, graph GraphStore, types map[string]ontology.Type) *Orchestrator {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	return &Orchestrator{
		Config:    cfg,
		Extractor: extractor,
		Hooks:     hooks,
		Graph:     graph,
		Types:     types,
		Parse:     htmldoc.Parse,
	}
}

// discoverFiles recursively enumerates *.html files under root in
// sorted path order, skipping hidden files and directories (spec
// §4.6 "File discovery").
func discoverFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if name != "." && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(name), ".html") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: discovering files under %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Run drives the full batch loop (spec §4.6). The returned Statistics
// is always populated, even when the run aborts early or err is
// non-nil; callers should report stats regardless of error.
func (o *Orchestrator) Run(ctx context.Context) (Statistics, error) {
	start := time.Now()
	var stats Statistics

	paths, err := discoverFiles(o.Config.SourceDir)
	if err != nil {
		return stats, err
	}
	stats.Total = len(paths)

	parse := o.Parse
	if parse == nil {
		parse = htmldoc.Parse
	}

	consecutiveFailures := 0
	successCount := 0
	aborted := false

docLoop:
	for i, path := range paths {
		select {
		case <-ctx.Done():
			log.Warn().Msg("orchestrator_interrupted")
			break docLoop
		default:
		}

		relPath, relErr := filepath.Rel(o.Config.SourceDir, path)
		if relErr != nil {
			relPath = path
		}
		docID := model.DocIDFromPath(relPath)
		progress := fmt.Sprintf("[%d/%d]", i+1, stats.Total)

		doc, err := parse(path, docID, o.Config.Namespace)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: parse: %v", docID, err))
			log.Error().Str("doc_id", docID).Err(err).Msg("orchestrator_parse_failed")
			consecutiveFailures++
			if consecutiveFailures >= o.Config.MaxFailures {
				aborted = true
				break docLoop
			}
			continue
		}

		if o.Config.SkipProcessed && !o.Config.Refresh {
			state, stateErr := o.Graph.GetDocumentState(ctx, o.Config.Namespace, docID)
			if stateErr == nil && state.Exists && state.ContentHash == doc.ContentHash {
				stats.Skipped++
				log.Info().Str("doc_id", docID).Msg(progress + " SKIPPED hash_match")
				continue
			}
		}

		result, warnings, err := o.Extractor.Extract(ctx, doc)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: extract: %v", docID, err))
			log.Error().Str("doc_id", docID).Err(err).Msg(progress + " FAILED")
			consecutiveFailures++
			if consecutiveFailures >= o.Config.MaxFailures {
				aborted = true
				break docLoop
			}
			continue
		}
		for _, w := range warnings {
			log.Warn().Str("doc_id", docID).Msg(w.String())
		}

		if _, err := o.Hooks.RunBeforeStore(ctx, o.Config.Namespace, result.Entities); err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: before_store hooks: %v", docID, err))
			log.Error().Str("doc_id", docID).Err(err).Msg(progress + " FAILED")
			consecutiveFailures++
			if consecutiveFailures >= o.Config.MaxFailures {
				aborted = true
				break docLoop
			}
			continue
		}

		if o.Config.Interactive && o.Reviewer != nil {
			reviewed, err := o.Reviewer.Review(ctx, docID, result.Entities)
			if err != nil {
				log.Warn().Str("doc_id", docID).Err(err).Msg("orchestrator_review_aborted")
			} else {
				result.Entities = reviewed
			}
		}

		if o.Config.DryRun {
			stats.Processed++
			successCount++
			consecutiveFailures = 0
			log.Info().Str("doc_id", docID).
				Int("entities", len(result.Entities)).
				Int("relations", len(result.Relations)).
				Msg(progress + " PROCESSED (dry-run)")
			if o.Config.MaxBatchDocs > 0 && successCount >= o.Config.MaxBatchDocs {
				break docLoop
			}
			continue
		}

		upsert, err := o.Graph.UpsertDocument(ctx, doc, result.Entities, result.Relations, o.Types)
		if err != nil {
			stats.Failed++
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: graph upsert: %v", docID, err))
			log.Error().Str("doc_id", docID).Err(err).Msg(progress + " FAILED")
			consecutiveFailures++
			if consecutiveFailures >= o.Config.MaxFailures {
				aborted = true
				break docLoop
			}
			continue
		}

		stats.Processed++
		stats.EntitiesCreated += upsert.EntitiesCreated
		stats.RelationshipsCreated += upsert.RelationshipsCreated
		consecutiveFailures = 0
		successCount++
		log.Info().Str("doc_id", docID).
			Int("entities_created", upsert.EntitiesCreated).
			Int("relationships_created", upsert.RelationshipsCreated).
			Msg(progress + " PROCESSED")

		if o.Config.MaxBatchDocs > 0 && successCount >= o.Config.MaxBatchDocs {
			break docLoop
		}
	}

	if successCount > 0 {
		if warnings, err := o.Hooks.RunAfterBatch(ctx, o.Config.Namespace); err != nil {
			log.Error().Err(err).Msg("orchestrator_after_batch_failed")
			stats.Errors = append(stats.Errors, fmt.Sprintf("after_batch: %v", err))
		} else {
			for _, w := range warnings {
				log.Warn().Msg(w)
			}
		}
	}

	stats.DurationSeconds = time.Since(start).Seconds()
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Processed) / float64(stats.Total)
	}

	if aborted {
		return stats, fmt.Errorf("%w (%d consecutive failures)", ErrAborted, consecutiveFailures)
	}
	return stats, nil
}
