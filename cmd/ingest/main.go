// Command ingest is the thin composition root that wires configuration,
// an LLM provider, the canonicalization hook chain, the graph and
// vector stores, and the orchestrator batch loop together. Grounded on
// intelligencedev-manifold/cmd/orchestrator/main.go's run()-returns-
// exit-code shape and signal.NotifyContext graceful-shutdown pattern,
// adapted from a long-lived Kafka consumer process to a one-shot batch
// run over a document corpus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/brunokrugel/kgforge/internal/canon"
	"github.com/brunokrugel/kgforge/internal/config"
	"github.com/brunokrugel/kgforge/internal/graphstore"
	"github.com/brunokrugel/kgforge/internal/llmextract"
	"github.com/brunokrugel/kgforge/internal/llmextract/providers"
	"github.com/brunokrugel/kgforge/internal/logging"
	"github.com/brunokrugel/kgforge/internal/ontology"
	"github.com/brunokrugel/kgforge/internal/orchestrator"
	"github.com/brunokrugel/kgforge/internal/review"
	"github.com/brunokrugel/kgforge/internal/telemetry"
	"github.com/brunokrugel/kgforge/internal/vectorstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	source := flag.String("source", "", "corpus root directory (required)")
	namespace := flag.String("namespace", "default", "namespace to ingest into")
	dryRun := flag.Bool("dry-run", false, "stop before graph writes")
	refresh := flag.Bool("refresh", false, "force re-extraction even if content_hash is unchanged")
	interactive := flag.Bool("interactive", false, "enable the per-document review session")
	maxBatchDocs := flag.Int("max-batch-docs", 0, "stop after N successful documents (0 = unlimited)")
	yamlConfig := flag.String("config", "", "optional YAML config overlay path")
	flag.Parse()

	cfg, err := config.Load(*yamlConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logging.Init(cfg.LogLevel)

	if *source == "" {
		log.Error().Msg("--source is required")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	otelShutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		log.Error().Err(err).Msg("telemetry setup failed")
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	outcome, err := ontology.Load(cfg.Ontology.EntitiesDir)
	if err != nil {
		log.Error().Err(err).Msg("ontology load failed")
		return 1
	}
	for _, w := range outcome.Warnings {
		log.Warn().Msg(w)
	}

	templateBytes, err := os.ReadFile(cfg.Ontology.PromptTemplateFile)
	if err != nil {
		log.Error().Err(err).Msg("prompt template read failed")
		return 1
	}
	prompt, err := ontology.AssemblePrompt(string(templateBytes), outcome.Types)
	if err != nil {
		log.Error().Err(err).Msg("prompt assembly failed")
		return 1
	}

	provider, err := providers.New(ctx)
	if err != nil {
		log.Error().Err(err).Msg("llm provider selection failed")
		return 1
	}
	extractor := llmextract.NewLLMExtractor(provider, prompt, outcome.Types, llmextract.Config{
		MaxConsecutiveFailures: cfg.Pipeline.MaxFailures,
	})

	graph, err := graphstore.New(ctx, graphstore.Config{
		URI:      cfg.Graph.Neo4jURI,
		Username: cfg.Graph.Neo4jUsername,
		Password: cfg.Graph.Neo4jPassword,
		Database: cfg.Graph.Neo4jDatabase,
	})
	if err != nil {
		log.Error().Err(err).Msg("graph connectivity failed")
		return 3
	}
	defer func() { _ = graph.Close(context.Background()) }()

	if err := graph.Init(ctx); err != nil {
		log.Error().Err(err).Msg("graph schema init failed")
		return 3
	}

	var embedder canon.Embedder
	var vectors canon.VectorIndex
	if cfg.Vector.QdrantURL != "" {
		vstore, err := vectorstore.New(vectorstore.Config{
			URL:        cfg.Vector.QdrantURL,
			APIKey:     cfg.Vector.QdrantAPIKey,
			Dimensions: cfg.Vector.EmbeddingDims,
		})
		if err != nil {
			log.Warn().Err(err).Msg("vector sidecar unavailable, continuing with fuzzy-only dedup")
		} else {
			defer func() { _ = vstore.Close() }()
			vectors = vstore

			if cfg.LLM.OpenRouterAPIKey != "" {
				e, err := providers.NewEmbedder(providers.EmbedderConfig{
					APIKey:  cfg.LLM.OpenRouterAPIKey,
					Model:   cfg.Vector.EmbeddingModel,
					BaseURL: cfg.LLM.OpenRouterBaseURL,
				}, &http.Client{})
				if err != nil {
					log.Warn().Err(err).Msg("embedder unavailable, continuing with fuzzy-only dedup")
				} else {
					embedder = e
				}
			}
		}
	}

	var picker canon.DecisionPicker
	var reviewer orchestrator.Reviewer
	if *interactive {
		session := review.NewSession(os.Stdin, os.Stdout)
		picker = session
		reviewer = session
	}

	hooks, err := canon.BuildDefaultRegistry(canon.DefaultWiringConfig{
		DictionaryPath:    cfg.Ontology.DictionaryFile,
		FuzzyThreshold:    cfg.Pipeline.FuzzyThreshold,
		VectorThreshold:   cfg.Pipeline.VectorThreshold,
		Graph:             graph,
		Embedder:          embedder,
		Vectors:           vectors,
		GlobalLister:      graph,
		GlobalMerger:      graph,
		InteractivePicker: picker,
	})
	if err != nil {
		log.Error().Err(err).Msg("hook registry build failed")
		return 1
	}

	o := orchestrator.New(orchestrator.Config{
		SourceDir:     *source,
		Namespace:     *namespace,
		DryRun:        *dryRun,
		Refresh:       *refresh,
		Interactive:   *interactive,
		SkipProcessed: cfg.Pipeline.SkipProcessed,
		MaxBatchDocs:  *maxBatchDocs,
		MaxFailures:   cfg.Pipeline.MaxFailures,
	}, extractor, hooks, graph, outcome.Types)
	o.Reviewer = reviewer

	stats, runErr := o.Run(ctx)
	log.Info().
		Int("total", stats.Total).
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("entities_created", stats.EntitiesCreated).
		Int("relationships_created", stats.RelationshipsCreated).
		Float64("duration_s", stats.DurationSeconds).
		Float64("success_rate", stats.SuccessRate).
		Msg("ingest run complete")

	if runErr != nil {
		if errors.Is(runErr, orchestrator.ErrAborted) {
			log.Error().Err(runErr).Msg("run aborted")
			return 2
		}
		log.Error().Err(runErr).Msg("run failed")
		return 1
	}
	if stats.Failed > 0 {
		return 1
	}
	return 0
}
