// Package vectorstore implements the embeddings sidecar on Qdrant: one
// namespaced collection per namespace, cosine similarity, persisted on
// disk by the Qdrant server itself (spec §4.5). Grounded directly on
// intelligencedev-manifold/internal/persistence/databases/qdrant_vector.go,
// adapted from that file's single shared collection (entries
// distinguished by a metadata filter) to one collection per namespace,
// since namespace is this domain's unit of lifecycle (spec §9): a
// namespace clear must be able to drop its vector state by dropping a
// whole collection, not by filtered delete.
package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/brunokrugel/kgforge/internal/canon"
)

// payloadIDField stores the caller-supplied deterministic id, since
// Qdrant point ids must be a UUID or unsigned integer (same constraint
// and workaround as the teacher's qdrantVector).
const payloadIDField = "_original_id"

const (
	payloadEntityType = "entity_type"
	payloadEntityName = "entity_name"
	payloadNamespace  = "namespace"
)

// Store is the namespaced Qdrant vector sidecar.
type Store struct {
	client    *qdrant.Client
	dimension int

	mu          sync.Mutex
	collections map[string]bool // namespace collection names known to exist
}

// Config holds the vector sidecar's connection parameters (spec §6 adds
// QDRANT_URL / QDRANT_API_KEY to the env surface, following the same
// dsn-as-URL convention the teacher uses for Postgres/S3).
type Config struct {
	URL        string
	APIKey     string
	Dimensions int
}

// New connects to Qdrant. Collections are created lazily per namespace
// on first use rather than eagerly here, since the set of namespaces
// isn't known at startup.
func New(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vectorstore: dimensions must be > 0")
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse url: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: invalid port in url: %w", err)
	}

	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if cfg.APIKey != "" {
		qcfg.APIKey = cfg.APIKey
	}

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create client: %w", err)
	}

	return &Store{client: client, dimension: cfg.Dimensions, collections: map[string]bool{}}, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func collectionName(namespace string) string {
	return "kgforge_" + namespace
}

func (s *Store) ensureCollection(ctx context.Context, namespace string) error {
	name := collectionName(namespace)

	s.mu.Lock()
	known := s.collections[name]
	s.mu.Unlock()
	if known {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vectorstore: check collection %s: %w", name, err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("vectorstore: create collection %s: %w", name, err)
		}
	}

	s.mu.Lock()
	s.collections[name] = true
	s.mu.Unlock()
	return nil
}

func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// AddEntity implements canon.VectorIndex and the spec §4.5 add_entity
// operation: stores embedding under the deterministic id
// "namespace:entity_type:normalized_name" (the caller constructs id;
// this method just persists it).
func (s *Store) AddEntity(ctx context.Context, id, namespace, entityType, entityName string, embedding []float32) error {
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return err
	}

	payload := qdrant.NewValueMap(map[string]any{
		payloadIDField:    id,
		payloadEntityType: entityType,
		payloadEntityName: entityName,
		payloadNamespace:  namespace,
	})
	vec := make([]float32, len(embedding))
	copy(vec, embedding)

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName(namespace),
		Points: []*qdrant.PointStruct{{
			Id:      pointID(id),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: add entity %s: %w", id, err)
	}
	return nil
}

// SearchSimilar implements canon.VectorIndex and the spec §4.5
// search_similar operation: nearest neighbors in a namespace's
// collection, filtered by entity_type.
func (s *Store) SearchSimilar(ctx context.Context, namespace, entityType string, embedding []float32, limit int) ([]canon.VectorMatch, error) {
	if err := s.ensureCollection(ctx, namespace); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	limitU := uint64(limit)

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName(namespace),
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limitU,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch(payloadEntityType, entityType)}},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search similar: %w", err)
	}

	out := make([]canon.VectorMatch, 0, len(hits))
	for _, hit := range hits {
		id := ""
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadIDField]; ok {
				id = v.GetStringValue()
			}
		}
		if id == "" {
			id = hit.Id.GetUuid()
		}
		out = append(out, canon.VectorMatch{ID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

// DeleteNamespace drops the namespace's entire collection, returning
// the point count it held (spec §4.5 delete_namespace). Dropping the
// whole collection rather than filtering-and-deleting keeps this
// operation atomic from the operator's perspective (spec §9).
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (int, error) {
	name := collectionName(namespace)

	count, err := s.collectionPointCount(ctx, name)
	if err != nil {
		return 0, err
	}

	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return 0, fmt.Errorf("vectorstore: delete collection %s: %w", name, err)
	}

	s.mu.Lock()
	delete(s.collections, name)
	s.mu.Unlock()

	return count, nil
}

func (s *Store) collectionPointCount(ctx context.Context, name string) (int, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: check collection %s: %w", name, err)
	}
	if !exists {
		return 0, nil
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: collection info %s: %w", name, err)
	}
	return int(info.GetPointsCount()), nil
}

// Stats reports per-namespace point counts across every collection this
// Store has touched in the process lifetime (spec §4.5 stats()).
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	s.mu.Unlock()

	out := make(map[string]int, len(names))
	for _, name := range names {
		count, err := s.collectionPointCount(ctx, name)
		if err != nil {
			return nil, err
		}
		namespace := strings.TrimPrefix(name, "kgforge_")
		out[namespace] = count
	}
	return out, nil
}
