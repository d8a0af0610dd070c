package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brunokrugel/kgforge/internal/graphstore"
	"github.com/brunokrugel/kgforge/internal/htmldoc"
	"github.com/brunokrugel/kgforge/internal/llmextract"
	"github.com/brunokrugel/kgforge/internal/model"
	"github.com/brunokrugel/kgforge/internal/ontology"
)

type fakeExtractor struct {
	err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, doc model.Document) (model.ExtractionResult, []llmextract.ParseWarning, error) {
	f.calls++
	if f.err != nil {
		return model.ExtractionResult{}, nil, f.err
	}
	return model.ExtractionResult{
		Entities: []model.ExtractedEntity{{TypeID: "product", Name: "Atlas", NormalizedName: "atlas"}},
	}, nil, nil
}

type fakeHooks struct {
	afterBatchCalls int
}

func (f *fakeHooks) RunBeforeStore(ctx context.Context, namespace string, entities []model.ExtractedEntity) ([]string, error) {
	return nil, nil
}
func (f *fakeHooks) RunAfterBatch(ctx context.Context, namespace string) ([]string, error) {
	f.afterBatchCalls++
	return nil, nil
}

type fakeGraph struct {
	states    map[string]graphstore.DocumentState
	upserts   int
	upsertErr error
}

func (f *fakeGraph) GetDocumentState(ctx context.Context, namespace, docID string) (graphstore.DocumentState, error) {
	if f.states == nil {
		return graphstore.DocumentState{}, nil
	}
	return f.states[docID], nil
}

func (f *fakeGraph) UpsertDocument(ctx context.Context, doc model.Document, entities []model.ExtractedEntity, relations []model.ExtractedRelation, types map[string]ontology.Type) (graphstore.UpsertResult, error) {
	if f.upsertErr != nil {
		return graphstore.UpsertResult{}, f.upsertErr
	}
	f.upserts++
	return graphstore.UpsertResult{EntitiesCreated: 1}, nil
}

func writeHTML(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("<html><head><title>T</title></head><body><p>body</p></body></html>"), 0o644))
	return path
}

func TestDiscoverFilesSortsAndSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "b.html")
	writeHTML(t, dir, "a.html")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := discoverFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Contains(t, files[0], "a.html")
	require.Contains(t, files[1], "b.html")
}

func TestDiscoverFilesEmptyCorpusReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	files, err := discoverFiles(dir)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestRunProcessesDiscoveredDocumentsAndRunsAfterBatch(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "a.html")
	writeHTML(t, dir, "b.html")

	graph := &fakeGraph{}
	hooks := &fakeHooks{}
	o := New(Config{SourceDir: dir, Namespace: "acme"}, &fakeExtractor{}, hooks, graph, map[string]ontology.Type{})

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 0, stats.Failed)
	require.Equal(t, 2, graph.upserts)
	require.Equal(t, 1, hooks.afterBatchCalls)
	require.Equal(t, 1.0, stats.SuccessRate)
}

func TestRunSkipsDocumentsWithMatchingContentHash(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "a.html")

	doc, err := htmldoc.Parse(filepath.Join(dir, "a.html"), "a", "acme")
	require.NoError(t, err)

	graph := &fakeGraph{states: map[string]graphstore.DocumentState{
		"a": {Exists: true, ContentHash: doc.ContentHash},
	}}
	o := New(Config{SourceDir: dir, Namespace: "acme", SkipProcessed: true}, &fakeExtractor{}, &fakeHooks{}, graph, map[string]ontology.Type{})

	stats, runErr := o.Run(context.Background())
	require.NoError(t, runErr)
	require.Equal(t, 1, stats.Skipped)
	require.Equal(t, 0, stats.Processed)
}

func TestRunAbortsAfterConsecutiveFailureThreshold(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "a.html")
	writeHTML(t, dir, "b.html")
	writeHTML(t, dir, "c.html")

	extractor := &fakeExtractor{err: errors.New("boom")}
	o := New(Config{SourceDir: dir, Namespace: "acme", MaxFailures: 2}, extractor, &fakeHooks{}, &fakeGraph{}, map[string]ontology.Type{})

	stats, runErr := o.Run(context.Background())
	require.ErrorIs(t, runErr, ErrAborted)
	require.Equal(t, 2, stats.Failed)
}

func TestRunStopsAtMaxBatchDocs(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "a.html")
	writeHTML(t, dir, "b.html")
	writeHTML(t, dir, "c.html")

	graph := &fakeGraph{}
	o := New(Config{SourceDir: dir, Namespace: "acme", MaxBatchDocs: 2}, &fakeExtractor{}, &fakeHooks{}, graph, map[string]ontology.Type{})

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Processed)
	require.Equal(t, 2, graph.upserts)
}

func TestRunDryRunSkipsGraphWrites(t *testing.T) {
	dir := t.TempDir()
	writeHTML(t, dir, "a.html")

	graph := &fakeGraph{}
	o := New(Config{SourceDir: dir, Namespace: "acme", DryRun: true}, &fakeExtractor{}, &fakeHooks{}, graph, map[string]ontology.Type{})

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Processed)
	require.Equal(t, 0, graph.upserts)
}

func TestRunZeroDocumentsSucceedsWithZeroedStats(t *testing.T) {
	dir := t.TempDir()
	o := New(Config{SourceDir: dir, Namespace: "acme"}, &fakeExtractor{}, &fakeHooks{}, &fakeGraph{}, map[string]ontology.Type{})

	stats, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats.Total)
	require.Equal(t, 0.0, stats.SuccessRate)
}
