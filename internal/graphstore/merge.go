package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Merge implements §4.4 merge(A->B): within a single transaction,
// rewrite every incoming and outgoing edge of the loser to reference
// the winner, add the loser's name to the winner's aliases, then delete
// the loser. Moved edges keep their own properties; where the winner
// already has an edge of the same type to the same neighbour, both edges
// remain and their confidences are not combined. Edges between the loser
// and the winner are dropped with the loser. Idempotent: once the loser
// node is gone, re-applying the same merge matches nothing and is a
// no-op, satisfying I4.
func (g *GraphStore) Merge(ctx context.Context, namespace, loserID, winnerID string) error {
	if loserID == winnerID {
		return nil
	}

	tracer := otel.Tracer("internal/graphstore")
	ctx, span := tracer.Start(ctx, "graphstore.Merge")
	defer span.End()
	span.SetAttributes(
		attribute.String("namespace", namespace),
		attribute.String("loser_id", loserID),
		attribute.String("winner_id", winnerID),
	)

	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, g.mergeTx(ctx, tx, namespace, loserID, winnerID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.RecordError(ctx, "merge", namespace)
		return fmt.Errorf("graphstore: merge %s -> %s: %w", loserID, winnerID, err)
	}
	g.metrics.RecordCommit(ctx, "merge", namespace)
	return nil
}

func (g *GraphStore) mergeTx(ctx context.Context, tx neo4j.ManagedTransaction, namespace, loserID, winnerID string) error {
	exists, err := tx.Run(ctx,
		`MATCH (a:Entity {namespace: $namespace, id: $loser_id}) RETURN a.id AS id`,
		map[string]any{"namespace": namespace, "loser_id": loserID},
	)
	if err != nil {
		return err
	}
	if _, err := exists.Single(ctx); err != nil {
		// Loser already gone: idempotent no-op.
		return nil
	}

	statements := []string{
		// Rewrite outgoing edges of A to originate from B.
		`MATCH (b:Entity {namespace: $namespace, id: $winner_id})
		 MATCH (a:Entity {namespace: $namespace, id: $loser_id})-[r]->(other)
		 WHERE other <> b
		 CALL apoc.refactor.from(r, b) YIELD output RETURN count(output)`,
		// Rewrite incoming edges of A (including MENTIONS from documents)
		// to point at B.
		`MATCH (b:Entity {namespace: $namespace, id: $winner_id})
		 MATCH (other)-[r]->(a:Entity {namespace: $namespace, id: $loser_id})
		 WHERE other <> b
		 CALL apoc.refactor.to(r, b) YIELD output RETURN count(output)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Run(ctx, stmt, map[string]any{
			"namespace": namespace, "loser_id": loserID, "winner_id": winnerID,
		}); err != nil {
			return fmt.Errorf("rewrite edges: %w", err)
		}
	}

	if _, err := tx.Run(ctx,
		`MATCH (a:Entity {namespace: $namespace, id: $loser_id})
		 MATCH (b:Entity {namespace: $namespace, id: $winner_id})
		 SET b.aliases = apoc.coll.toSet(coalesce(b.aliases, []) + [a.name] + coalesce(a.aliases, []))
		 DETACH DELETE a`,
		map[string]any{"namespace": namespace, "loser_id": loserID, "winner_id": winnerID},
	); err != nil {
		return fmt.Errorf("absorb aliases and delete loser: %w", err)
	}

	return nil
}

// ClearNamespaceResult reports how much graph state a namespace wipe
// removed, for the operator-facing `db clear` command (out of scope
// here, but the core op it calls is in scope).
type ClearNamespaceResult struct {
	NodesDeleted int
	EdgesDeleted int
}

// ClearNamespace deletes every node and edge in a namespace (spec §4.4
// "Namespace clear"). The caller is responsible for also dropping the
// corresponding vector sidecar collection so both stores stay in sync
// (spec §9 "two datastores, one logical namespace").
func (g *GraphStore) ClearNamespace(ctx context.Context, namespace string) (ClearNamespaceResult, error) {
	session := g.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			`MATCH (n {namespace: $namespace})
			 OPTIONAL MATCH (n)-[r]-()
			 WITH n, count(r) AS edges
			 DETACH DELETE n
			 RETURN count(n) AS nodes, sum(edges) AS edges`,
			map[string]any{"namespace": namespace},
		)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return ClearNamespaceResult{}, nil
		}
		nodes, _ := record.Get("nodes")
		edges, _ := record.Get("edges")
		return ClearNamespaceResult{
			NodesDeleted: int(asInt64(nodes)),
			EdgesDeleted: int(asInt64(edges) / 2), // each undirected edge counted from both endpoints
		}, nil
	})
	if err != nil {
		return ClearNamespaceResult{}, fmt.Errorf("graphstore: clear namespace %s: %w", namespace, err)
	}
	return out.(ClearNamespaceResult), nil
}
