// Package config loads pipeline configuration from environment
// variables with an optional YAML overlay for defaults, following
// intelligencedev-manifold/internal/config/loader.go's env-first
// pattern (godotenv.Overload then explicit os.Getenv reads). Precedence
// is env > YAML > built-in defaults; the CLI layer (highest precedence
// in spec §6) is out of scope here and applies its own overrides on top
// of the Config this package returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig holds the provider-pluggable extraction client settings
// (spec §6 LLM env vars).
type LLMConfig struct {
	OpenRouterAPIKey   string `yaml:"openrouter_api_key"`
	OpenRouterModel    string `yaml:"openrouter_model_name"`
	OpenRouterBaseURL  string `yaml:"openrouter_base_url"`
	AWSRegion          string `yaml:"aws_region"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	BedrockModel       string `yaml:"bedrock_model_name"`
	MaxRetries         int    `yaml:"max_retries"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// GraphConfig holds Neo4j connection settings (spec §6).
type GraphConfig struct {
	Neo4jURI      string `yaml:"neo4j_uri"`
	Neo4jUsername string `yaml:"neo4j_username"`
	Neo4jPassword string `yaml:"neo4j_password"`
	Neo4jDatabase string `yaml:"neo4j_database"`
}

// VectorConfig holds the vector sidecar's connection settings (SPEC_FULL
// addition; grounded on the graph store's URI-style DSN convention).
type VectorConfig struct {
	QdrantURL      string `yaml:"qdrant_url"`
	QdrantAPIKey   string `yaml:"qdrant_api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
	EmbeddingDims  int    `yaml:"embedding_dimensions"`
}

// PipelineConfig holds tunables named in spec §6 ("Pipeline").
type PipelineConfig struct {
	FuzzyThreshold  float64 `yaml:"fuzzy_threshold"`
	VectorThreshold float64 `yaml:"vector_threshold"`
	MaxBatchDocs    int     `yaml:"max_batch_docs"`
	MaxFailures     int     `yaml:"max_failures"`
	SkipProcessed   bool    `yaml:"skip_processed"`
}

// OntologyConfig holds ontology-pack location settings (spec §6).
type OntologyConfig struct {
	EntitiesDir        string `yaml:"entities_dir"`
	PromptTemplateFile string `yaml:"prompt_template_file"`
	DictionaryFile     string `yaml:"dictionary_file"`
}

// ObservabilityConfig holds the OTLP exporter settings this expansion
// adds on top of the spec's structured-logging requirement (ambient
// stack; grounded on intelligencedev-manifold/internal/observability/otel.go's
// ObsConfig shape).
type ObservabilityConfig struct {
	OTelEnabled  bool   `yaml:"otel_enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Config aggregates every ambient and domain setting the core pipeline
// needs, independent of the CLI flags that select/override them at
// invocation time.
type Config struct {
	LLM           LLMConfig           `yaml:"llm"`
	Graph         GraphConfig         `yaml:"graph"`
	Vector        VectorConfig        `yaml:"vector"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Ontology      OntologyConfig      `yaml:"ontology"`
	Observability ObservabilityConfig `yaml:"observability"`
	LogLevel      string              `yaml:"log_level"`
}

// defaults mirrors the spec's documented defaults (§4.2 consecutive
// failures, §4.3 fuzzy/vector thresholds) plus the ambient ones this
// expansion adds.
func defaults() Config {
	return Config{
		Graph: GraphConfig{Neo4jDatabase: "neo4j"},
		Vector: VectorConfig{
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  1536,
		},
		Pipeline: PipelineConfig{
			FuzzyThreshold:  0.85,
			VectorThreshold: 0.85,
			MaxFailures:     10,
			SkipProcessed:   true,
		},
		Ontology: OntologyConfig{
			EntitiesDir:        "entities",
			PromptTemplateFile: "entities/prompt_template.md",
		},
		LLM: LLMConfig{
			MaxRetries:     1,
			TimeoutSeconds: 30,
		},
		Observability: ObservabilityConfig{
			ServiceName: "kgforge-ingest",
		},
		LogLevel: "info",
	}
}

// Load builds a Config from (lowest to highest precedence): built-in
// defaults, an optional YAML file at yamlPath, then environment
// variables (.env loaded via godotenv.Overload if present). The CLI
// surface is expected to apply its own flag overrides on top of the
// returned Config.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: reading %q: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %q: %w", yamlPath, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Graph.Neo4jURI == "" {
		return cfg, fmt.Errorf("config: NEO4J_URI is required")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")); v != "" {
		cfg.LLM.OpenRouterAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_MODEL_NAME")); v != "" {
		cfg.LLM.OpenRouterModel = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")); v != "" {
		cfg.LLM.OpenRouterBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" {
		cfg.LLM.AWSRegion = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")); v != "" {
		cfg.LLM.AWSAccessKeyID = v
	}
	if v := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")); v != "" {
		cfg.LLM.AWSSecretAccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv("BEDROCK_MODEL_NAME")); v != "" {
		cfg.LLM.BedrockModel = v
	}
	if v := strings.TrimSpace(os.Getenv("LLM_MAX_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LLM_TIMEOUT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TimeoutSeconds = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("NEO4J_URI")); v != "" {
		cfg.Graph.Neo4jURI = v
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_USERNAME")); v != "" {
		cfg.Graph.Neo4jUsername = v
	}
	if v := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD")); v != "" {
		cfg.Graph.Neo4jPassword = v
	}

	if v := strings.TrimSpace(os.Getenv("QDRANT_URL")); v != "" {
		cfg.Vector.QdrantURL = v
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_API_KEY")); v != "" {
		cfg.Vector.QdrantAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_MODEL")); v != "" {
		cfg.Vector.EmbeddingModel = v
	}

	if v := strings.TrimSpace(os.Getenv("FUZZY_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.FuzzyThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("VECTOR_THRESHOLD")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.VectorThreshold = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_BATCH_DOCS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxBatchDocs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_FAILURES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxFailures = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SKIP_PROCESSED")); v != "" {
		cfg.Pipeline.SkipProcessed = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}

	if v := strings.TrimSpace(os.Getenv("ENTITIES_DIR")); v != "" {
		cfg.Ontology.EntitiesDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PROMPT_TEMPLATE_FILE")); v != "" {
		cfg.Ontology.PromptTemplateFile = v
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		cfg.Observability.OTelEnabled = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Observability.ServiceName = v
	}
}
