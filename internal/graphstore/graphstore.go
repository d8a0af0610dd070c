// Package graphstore implements the property-graph persistence layer on
// Neo4j: schema/index initialization, idempotent per-document upserts of
// documents, entities, mention edges, and ontology-typed entity-entity
// edges, plus the global merge and namespace-clear operations (spec
// §4.4). Grounded on the Neo4jURI/Neo4jUser/Neo4jPassword configuration
// shape from other_examples' neo4j-graphrag wrapper, and on the
// teacher's (intelligencedev-manifold) GraphDB interface shape
// (UpsertNode/UpsertEdge/Neighbors/GetNode) from
// internal/persistence/databases/interfaces.go, generalized here to the
// entity/relation/merge operations this domain needs.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/brunokrugel/kgforge/internal/model"
	"github.com/brunokrugel/kgforge/internal/ontology"
	"github.com/brunokrugel/kgforge/internal/telemetry"
)

// Config holds Neo4j connection parameters (spec §6 env vars NEO4J_URI,
// NEO4J_USERNAME, NEO4J_PASSWORD).
type Config struct {
	URI      string
	Username string
	Password string
	Database string // empty means the driver default ("neo4j")
}

// GraphStore is the Neo4j-backed property-graph store.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
	metrics  telemetry.GraphTxMetrics
}

// New opens a driver and verifies connectivity. A connectivity failure
// here is the spec's "graph connectivity failure" error kind (§7),
// mapped by cmd/ingest to exit code 3.
func New(ctx context.Context, cfg Config) (*GraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: create driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: connectivity check: %w", err)
	}
	metrics, err := telemetry.NewGraphTxMetrics()
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: build metrics: %w", err)
	}
	return &GraphStore{driver: driver, database: cfg.Database, metrics: metrics}, nil
}

// Close releases the underlying driver's connection pool.
func (g *GraphStore) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *GraphStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: g.database,
		AccessMode:   mode,
	})
}

// Init creates the uniqueness constraints and secondary indexes required
// by the data model (spec §4.4): uniqueness on (namespace, doc_id) for
// Documents and (namespace, entity_type, normalized_name) for Entities;
// secondary indexes on namespace, content_hash, entity_type, name.
func (g *GraphStore) Init(ctx context.Context) error {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT doc_merge_key IF NOT EXISTS FOR (d:Document) REQUIRE (d.namespace, d.doc_id) IS UNIQUE",
		"CREATE CONSTRAINT entity_merge_key IF NOT EXISTS FOR (e:Entity) REQUIRE (e.namespace, e.entity_type, e.normalized_name) IS UNIQUE",
		"CREATE INDEX doc_namespace IF NOT EXISTS FOR (d:Document) ON (d.namespace)",
		"CREATE INDEX doc_content_hash IF NOT EXISTS FOR (d:Document) ON (d.content_hash)",
		"CREATE INDEX entity_namespace IF NOT EXISTS FOR (e:Entity) ON (e.namespace)",
		"CREATE INDEX entity_type IF NOT EXISTS FOR (e:Entity) ON (e.entity_type)",
		"CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)",
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("graphstore: init statement %q: %w", stmt, err)
		}
	}
	return nil
}

// DocumentState reports what, if anything, is already stored for a
// (namespace, doc_id): used for the hash-based idempotent skip (I1).
type DocumentState struct {
	Exists      bool
	ContentHash string
}

// GetDocumentState looks up a document's stored content hash.
func (g *GraphStore) GetDocumentState(ctx context.Context, namespace, docID string) (DocumentState, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (d:Document {namespace: $namespace, doc_id: $doc_id}) RETURN d.content_hash AS hash`,
		map[string]any{"namespace": namespace, "doc_id": docID},
	)
	if err != nil {
		return DocumentState{}, fmt.Errorf("graphstore: get document state: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return DocumentState{}, nil
	}
	hash, _ := record.Get("hash")
	hashStr, _ := hash.(string)
	return DocumentState{Exists: true, ContentHash: hashStr}, nil
}

// UpsertResult reports what a document transaction actually wrote, for
// the orchestrator's running Statistics.
type UpsertResult struct {
	EntitiesCreated      int
	RelationshipsCreated int
}

// UpsertDocument runs the full per-document transaction (spec §4.4
// steps 1-4): Doc upsert, non-duplicate Entity upserts with alias
// union, MENTIONS edges with confidence-max, and typed-edge resolution
// through the post-hook entity list using the original extraction
// indices. It is atomic: either the whole document's graph state
// commits, or none of it does (spec §5 "Mentions and typed edges for a
// document become visible atomically on that document's transaction
// commit").
func (g *GraphStore) UpsertDocument(ctx context.Context, doc model.Document, entities []model.ExtractedEntity, relations []model.ExtractedRelation, types map[string]ontology.Type) (UpsertResult, error) {
	tracer := otel.Tracer("internal/graphstore")
	ctx, span := tracer.Start(ctx, "graphstore.UpsertDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", doc.Namespace),
		attribute.String("doc_id", doc.DocID),
		attribute.Int("candidate_entities", len(entities)),
		attribute.Int("candidate_relations", len(relations)),
	)

	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return g.upsertDocumentTx(ctx, tx, doc, entities, relations, types)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.RecordError(ctx, "upsert_document", doc.Namespace)
		return UpsertResult{}, fmt.Errorf("graphstore: upsert document %s: %w", doc.DocID, err)
	}
	result := out.(UpsertResult)
	span.SetAttributes(
		attribute.Int("entities_created", result.EntitiesCreated),
		attribute.Int("relationships_created", result.RelationshipsCreated),
	)
	g.metrics.RecordCommit(ctx, "upsert_document", doc.Namespace)
	return result, nil
}

func (g *GraphStore) upsertDocumentTx(ctx context.Context, tx neo4j.ManagedTransaction, doc model.Document, entities []model.ExtractedEntity, relations []model.ExtractedRelation, types map[string]ontology.Type) (UpsertResult, error) {
	var result UpsertResult

	if _, err := tx.Run(ctx,
		`MERGE (d:Document {namespace: $namespace, doc_id: $doc_id})
		 SET d.content_hash = $content_hash,
		     d.source_path = $source_path,
		     d.title = $title,
		     d.last_processed_at = $last_processed_at`,
		map[string]any{
			"namespace":         doc.Namespace,
			"doc_id":            doc.DocID,
			"content_hash":      doc.ContentHash,
			"source_path":       doc.SourcePath,
			"title":             doc.Title,
			"last_processed_at": time.Now().Unix(),
		},
	); err != nil {
		return result, fmt.Errorf("upsert document node: %w", err)
	}

	// canonicalID[i] resolves original extraction index i to the entity
	// node identity actually written (merge key for non-duplicates, or
	// the duplicate target). Index stability through every before_store
	// hook (I5) is what makes this resolution valid.
	canonicalID := make([]string, len(entities))

	for i := range entities {
		e := &entities[i]
		switch e.Dup {
		case model.DupTombstone:
			continue
		case model.DupGraph:
			canonicalID[i] = e.DupGraphID
			if err := g.addAlias(ctx, tx, doc.Namespace, e.DupGraphID, e.Name); err != nil {
				return result, err
			}
			continue
		case model.DupBatch:
			// Resolved in a second pass below, once every non-duplicate
			// entry's canonical id is known.
			continue
		}

		mergeKey := model.CanonicalEntity{Namespace: doc.Namespace, EntityType: e.TypeID, NormalizedName: e.NormalizedName}.MergeKey()
		if err := g.upsertEntityTx(ctx, tx, doc.Namespace, e, mergeKey); err != nil {
			return result, err
		}
		canonicalID[i] = mergeKey
		result.EntitiesCreated++
	}

	// Second pass: batch duplicates resolve to whatever their target
	// index resolved to, which may itself chain through another batch
	// duplicate.
	for i := range entities {
		if entities[i].Dup != model.DupBatch {
			continue
		}
		canonicalID[i] = resolveBatchDup(entities, canonicalID, i)
		if canonicalID[i] != "" {
			if err := g.addAlias(ctx, tx, doc.Namespace, canonicalID[i], entities[i].Name); err != nil {
				return result, err
			}
		}
	}

	for i := range entities {
		if entities[i].Dup == model.DupTombstone || canonicalID[i] == "" {
			continue
		}
		if err := g.upsertMentionTx(ctx, tx, doc.Namespace, doc.DocID, canonicalID[i], entities[i].Confidence, entities[i].Evidence); err != nil {
			return result, err
		}
	}

	for _, rel := range relations {
		if rel.FromEntity < 0 || rel.FromEntity >= len(canonicalID) || rel.ToEntity < 0 || rel.ToEntity >= len(canonicalID) {
			log.Warn().Str("doc_id", doc.DocID).Msg("graphstore_relation_index_out_of_range")
			continue
		}
		fromID, toID := canonicalID[rel.FromEntity], canonicalID[rel.ToEntity]
		if fromID == "" || toID == "" {
			log.Warn().Str("doc_id", doc.DocID).Str("relation_type", rel.Type).Msg("graphstore_relation_endpoint_unresolved")
			continue
		}

		label, srcID, dstID := canonicalDirection(entities, types, rel, fromID, toID)
		if label == "" {
			log.Warn().Str("doc_id", doc.DocID).Str("relation_type", rel.Type).Msg("graphstore_relation_not_in_ontology")
			continue
		}
		if err := g.upsertTypedEdgeTx(ctx, tx, doc.Namespace, srcID, dstID, label, rel.Confidence, rel.Evidence); err != nil {
			return result, err
		}
		result.RelationshipsCreated++
	}

	return result, nil
}

// resolveBatchDup follows a chain of same-batch duplicate markers to
// the first entry that has a concrete canonical id.
func resolveBatchDup(entities []model.ExtractedEntity, canonicalID []string, i int) string {
	seen := map[int]bool{}
	for {
		if seen[i] {
			return "" // cycle guard; should not happen with well-formed hooks
		}
		seen[i] = true
		if entities[i].Dup != model.DupBatch {
			return canonicalID[i]
		}
		target := entities[i].DupBatchOf
		if target < 0 || target >= len(canonicalID) {
			return ""
		}
		if canonicalID[target] != "" {
			return canonicalID[target]
		}
		i = target
	}
}

// canonicalDirection derives the edge label and (source, target) node
// ids from the ontology: the type that defines a relation toward the
// other side is the source (spec §3, §9 "Canonical edge direction").
func canonicalDirection(entities []model.ExtractedEntity, types map[string]ontology.Type, rel model.ExtractedRelation, fromNodeID, toNodeID string) (label, srcID, dstID string) {
	fromType := entities[rel.FromEntity].TypeID
	toType := entities[rel.ToEntity].TypeID

	if t, ok := types[fromType]; ok {
		if r, ok := t.RelationFor(toType); ok {
			return r.ToLabel, fromNodeID, toNodeID
		}
	}
	if t, ok := types[toType]; ok {
		if r, ok := t.RelationFor(fromType); ok {
			return r.ToLabel, toNodeID, fromNodeID
		}
	}
	// Neither endpoint's ontology type declares this relation: the edge
	// label must come from the ontology (spec §3), so there is nothing
	// canonical to write. The caller drops it and logs
	// graphstore_relation_not_in_ontology.
	return "", "", ""
}

func (g *GraphStore) upsertEntityTx(ctx context.Context, tx neo4j.ManagedTransaction, namespace string, e *model.ExtractedEntity, mergeKey string) error {
	_, err := tx.Run(ctx,
		`MERGE (n:Entity {namespace: $namespace, entity_type: $entity_type, normalized_name: $normalized_name})
		 ON CREATE SET n.id = $id, n.name = $name, n.aliases = $aliases, n.created_at = timestamp()
		 ON MATCH SET n.aliases = apoc.coll.toSet(coalesce(n.aliases, []) + $aliases)`,
		map[string]any{
			"namespace":       namespace,
			"entity_type":     e.TypeID,
			"normalized_name": e.NormalizedName,
			"id":              mergeKey,
			"name":            e.Name,
			"aliases":         e.Aliases,
		},
	)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", mergeKey, err)
	}
	return nil
}

func (g *GraphStore) addAlias(ctx context.Context, tx neo4j.ManagedTransaction, namespace, entityID, alias string) error {
	_, err := tx.Run(ctx,
		`MATCH (n:Entity {namespace: $namespace, id: $id})
		 SET n.aliases = apoc.coll.toSet(coalesce(n.aliases, []) + [$alias])`,
		map[string]any{"namespace": namespace, "id": entityID, "alias": alias},
	)
	if err != nil {
		return fmt.Errorf("add alias to %s: %w", entityID, err)
	}
	return nil
}

func (g *GraphStore) upsertMentionTx(ctx context.Context, tx neo4j.ManagedTransaction, namespace, docID, entityID string, confidence float64, evidence string) error {
	_, err := tx.Run(ctx,
		`MATCH (d:Document {namespace: $namespace, doc_id: $doc_id})
		 MATCH (e:Entity {namespace: $namespace, id: $entity_id})
		 MERGE (d)-[m:MENTIONS]->(e)
		 SET m.confidence = CASE WHEN coalesce(m.confidence, 0) > $confidence THEN m.confidence ELSE $confidence END,
		     m.evidence = coalesce(m.evidence, $evidence)`,
		map[string]any{
			"namespace":  namespace,
			"doc_id":     docID,
			"entity_id":  entityID,
			"confidence": confidence,
			"evidence":   evidence,
		},
	)
	if err != nil {
		return fmt.Errorf("upsert mention %s->%s: %w", docID, entityID, err)
	}
	return nil
}

func (g *GraphStore) upsertTypedEdgeTx(ctx context.Context, tx neo4j.ManagedTransaction, namespace, fromID, toID, label string, confidence float64, evidence string) error {
	cypher := fmt.Sprintf(
		`MATCH (a:Entity {namespace: $namespace, id: $from_id})
		 MATCH (b:Entity {namespace: $namespace, id: $to_id})
		 MERGE (a)-[r:%s]->(b)
		 SET r.namespace = $namespace,
		     r.confidence = CASE WHEN coalesce(r.confidence, 0) > $confidence THEN r.confidence ELSE $confidence END,
		     r.evidence = coalesce(r.evidence, $evidence)`,
		sanitizeRelType(label),
	)
	_, err := tx.Run(ctx, cypher, map[string]any{
		"namespace":  namespace,
		"from_id":    fromID,
		"to_id":      toID,
		"confidence": confidence,
		"evidence":   evidence,
	})
	if err != nil {
		return fmt.Errorf("upsert typed edge %s -[%s]-> %s: %w", fromID, label, toID, err)
	}
	return nil
}
