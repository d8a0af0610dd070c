// Package model defines the core data types shared across the ingestion
// pipeline: documents, entities, mentions, and the typed entity-entity
// edges produced from an ontology pack.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// LinkKind distinguishes links discovered inside a document's body.
type LinkKind string

const (
	LinkInternal LinkKind = "internal"
	LinkExternal LinkKind = "external"
)

// Link is a single outbound reference found in a document's markdown body.
type Link struct {
	URL  string
	Text string
	Kind LinkKind
}

// Document is created once per input file and is immutable after creation
// except for LastProcessedAt. See spec §3.
type Document struct {
	DocID          string
	Namespace      string
	SourcePath     string
	Title          string
	Breadcrumb     []string
	Links          []Link
	Text           string
	ContentHash    string
	LastProcessedAt int64 // unix seconds; zero if never processed
}

// DocIDFromPath derives a doc_id from a source file path: extension
// dropped, path separators normalized to "/", then lowercased.
func DocIDFromPath(path string) string {
	ext := filepath.Ext(path)
	trimmed := strings.TrimSuffix(path, ext)
	trimmed = strings.ReplaceAll(trimmed, string(filepath.Separator), "/")
	return strings.ToLower(trimmed)
}

// HashText computes the SHA-256 content hash used for idempotent skip (I1).
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// DuplicateKind tags how a same-batch entity entry was resolved by a
// before_store hook, per the "hook chain as tagged-variant decisions"
// design note (§9). Exactly one of these applies to an entry at any time.
type DuplicateKind int

const (
	// DupNone: the entity is canonical as far as hooks run so far know.
	DupNone DuplicateKind = iota
	// DupBatch: duplicate of another entry in the same extraction batch,
	// referenced by its index in the Entities slice.
	DupBatch
	// DupGraph: duplicate of an entity that already exists in the graph,
	// referenced by its graph-assigned merge key / ID.
	DupGraph
	// DupTombstone: removed via interactive review; the slot is kept so
	// relation indices stay valid, but nothing is ever written for it.
	DupTombstone
)

// ExtractedEntity is one element of an LLMExtractor result, as it flows
// through the canonicalization hook chain. Indices into the owning
// ExtractionResult.Entities slice are load-bearing (I5) — hooks must never
// reorder or remove entries, only mutate fields in place.
type ExtractedEntity struct {
	TypeID     string
	Name       string
	Aliases    []string
	Evidence   string
	Confidence float64 // 0 means "not reported"

	NormalizedName string

	Dup        DuplicateKind
	DupBatchOf int    // valid when Dup == DupBatch: index into the same slice
	DupGraphID string // valid when Dup == DupGraph: canonical graph entity ID
}

// ExtractedRelation references entities by index into the sibling
// ExtractionResult.Entities slice, never by name (design note in §9).
type ExtractedRelation struct {
	FromEntity int
	ToEntity   int
	Type       string
	Confidence float64
	Evidence   string
}

// ExtractionResult is what the LLMExtractor produces for one document.
type ExtractionResult struct {
	Entities  []ExtractedEntity
	Relations []ExtractedRelation
}

// CanonicalEntity is the persisted, merge-resolved form of an entity node.
type CanonicalEntity struct {
	ID             string // graph-assigned identity, e.g. "<namespace>:<entity_type>:<normalized_name>"
	Namespace      string
	EntityType     string
	Name           string
	NormalizedName string
	Aliases        []string
	Embedding      []float32
}

// MergeKey returns the (namespace, entity_type, normalized_name) merge key
// that makes entity upserts idempotent (§3).
func (e CanonicalEntity) MergeKey() string {
	return e.Namespace + ":" + e.EntityType + ":" + e.NormalizedName
}

// Mention is a Doc->Entity edge.
type Mention struct {
	Namespace  string
	DocID      string
	EntityID   string
	Confidence float64
	Evidence   string
}

// TypedEdge is a directed, ontology-labeled entity-entity edge.
type TypedEdge struct {
	Namespace  string
	FromID     string
	ToID       string
	Label      string
	Confidence float64
	Evidence   string
}
