package graphstore

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunokrugel/kgforge/internal/canon"
	"github.com/brunokrugel/kgforge/internal/model"
)

var relTypeSanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// sanitizeRelType upper-snakes an ontology relation label into a safe
// Cypher relationship type token: labels are interpolated into the
// query text (Cypher has no parameter placeholder for types), so this
// is a defense against labels containing characters outside
// [A-Za-z0-9_].
func sanitizeRelType(label string) string {
	upper := strings.ToUpper(strings.TrimSpace(label))
	upper = relTypeSanitizeRe.ReplaceAllString(upper, "_")
	if upper == "" {
		return "RELATED_TO"
	}
	return upper
}

// EntitiesByType satisfies canon.GraphEntityQuerier: every entity of a
// given type within a namespace, for the fuzzy dedup hook.
func (g *GraphStore) EntitiesByType(ctx context.Context, namespace, entityType string) ([]model.CanonicalEntity, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (e:Entity {namespace: $namespace, entity_type: $entity_type})
		 RETURN e.id AS id, e.name AS name, e.normalized_name AS normalized_name, e.aliases AS aliases`,
		map[string]any{"namespace": namespace, "entity_type": entityType},
	)
	if err != nil {
		return nil, fmt.Errorf("graphstore: entities by type: %w", err)
	}

	var out []model.CanonicalEntity
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphstore: collect entities by type: %w", err)
	}
	for _, r := range records {
		id, _ := r.Get("id")
		name, _ := r.Get("name")
		norm, _ := r.Get("normalized_name")
		out = append(out, model.CanonicalEntity{
			ID:             asString(id),
			Namespace:      namespace,
			EntityType:     entityType,
			Name:           asString(name),
			NormalizedName: asString(norm),
		})
	}
	return out, nil
}

// EntityTypes satisfies canon.GraphEntityLister: distinct entity types
// currently present in a namespace, used to scope the after_batch
// global dedup pass.
func (g *GraphStore) EntityTypes(ctx context.Context, namespace string) ([]string, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (e:Entity {namespace: $namespace}) RETURN DISTINCT e.entity_type AS entity_type`,
		map[string]any{"namespace": namespace},
	)
	if err != nil {
		return nil, fmt.Errorf("graphstore: entity types: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphstore: collect entity types: %w", err)
	}
	out := make([]string, 0, len(records))
	for _, r := range records {
		v, _ := r.Get("entity_type")
		out = append(out, asString(v))
	}
	return out, nil
}

// ListEntitiesForMerge satisfies canon.GraphEntityLister: entities of a
// type with the degree and created_at fields the global dedup tie-break
// needs (spec §4.6).
func (g *GraphStore) ListEntitiesForMerge(ctx context.Context, namespace, entityType string) ([]canon.GlobalEntity, error) {
	session := g.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (e:Entity {namespace: $namespace, entity_type: $entity_type})
		 OPTIONAL MATCH (e)-[r]-()
		 WITH e, count(r) AS degree
		 RETURN e.id AS id, e.normalized_name AS normalized_name, e.name AS name,
		        degree, coalesce(e.created_at, 0) AS created_at`,
		map[string]any{"namespace": namespace, "entity_type": entityType},
	)
	if err != nil {
		return nil, fmt.Errorf("graphstore: list entities for merge: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("graphstore: collect entities for merge: %w", err)
	}

	out := make([]canon.GlobalEntity, 0, len(records))
	for _, r := range records {
		id, _ := r.Get("id")
		norm, _ := r.Get("normalized_name")
		name, _ := r.Get("name")
		degree, _ := r.Get("degree")
		createdAt, _ := r.Get("created_at")
		out = append(out, canon.GlobalEntity{
			ID:             asString(id),
			NormalizedName: asString(norm),
			Name:           asString(name),
			Degree:         int(asInt64(degree)),
			CreatedAtUnix:  asInt64(createdAt),
		})
	}
	return out, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
