package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmentor/docmentor/internal/chunks"
	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/ingest"
	"github.com/docmentor/docmentor/internal/retriever"
	"github.com/docmentor/docmentor/internal/vectorindex"
)

// semicolonSplitter splits on ';' and drops empty parts.
type semicolonSplitter struct{}

func (semicolonSplitter) Split(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// coordEmbedder reads each text as space separated coordinates, so "1 0 0"
// embeds to [1 0 0].
type coordEmbedder struct {
	calls atomic.Int32
	err   error
	short bool
}

func (e *coordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		var v []float32
		for _, field := range strings.Fields(text) {
			f, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, err
			}
			v = append(v, float32(f))
		}
		out = append(out, v)
	}
	if e.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

type fixture struct {
	p        *Pipeline
	embedder *coordEmbedder
	registry *chunks.Registry
	store    *retriever.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := retriever.NewStore(vectorindex.FlatL2, 3, 5)
	require.NoError(t, err)
	registry := chunks.NewRegistry()
	embedder := &coordEmbedder{}
	return &fixture{
		p:        New(semicolonSplitter{}, embedder, registry, store, opts...),
		embedder: embedder,
		registry: registry,
		store:    store,
	}
}

func (f *fixture) assertSynced(t *testing.T, id string) {
	t.Helper()
	registered, err := f.registry.Len(id)
	require.NoError(t, err)
	indexed, err := f.store.Count(id)
	require.NoError(t, err)
	assert.Equal(t, registered, indexed)
}

func (f *fixture) assertAbsent(t *testing.T, id string) {
	t.Helper()
	assert.False(t, f.registry.Has(id))
	assert.False(t, f.store.Has(id))
}

func TestPipeline_TieBreakScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "0 0 0; 1 0 0"))
	require.NoError(t, f.p.ProcessDocument(ctx, "b", "0 0 1"))
	f.assertSynced(t, "a")
	f.assertSynced(t, "b")

	got, err := f.p.SearchRelatedChunks(ctx, "0 0 0", 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.RelatedChunk{
		{DocumentID: "a", Position: 0, Text: "0 0 0", Distance: 0},
		{DocumentID: "a", Position: 1, Text: "1 0 0", Distance: 1},
	}, got)

	got, err = f.p.SearchRelatedChunks(ctx, "0 0 0", 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "b", got[2].DocumentID)
}

func TestPipeline_DuplicateIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0"))
	err := f.p.ProcessDocument(ctx, "a", "0 1 0; 0 0 1")
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
	assert.Equal(t, "AlreadyExists", domain.KindOf(err))

	got, err := f.registry.Get("a", 0)
	require.NoError(t, err)
	assert.Equal(t, "1 0 0", got)
	f.assertSynced(t, "a")
	// rejected before embedding
	assert.Equal(t, int32(1), f.embedder.calls.Load())
}

func TestPipeline_RollbackOnDimensionMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.p.ProcessDocument(ctx, "bad", "1 0 0; 1 0")
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	f.assertAbsent(t, "bad")
	assert.Empty(t, f.p.ListDocuments())
}

func TestPipeline_VectorCountMismatch(t *testing.T) {
	f := newFixture(t)
	f.embedder.short = true

	err := f.p.ProcessDocument(context.Background(), "a", "1 0 0; 0 1 0")
	require.ErrorIs(t, err, domain.ErrConsistencyViolation)
	f.assertAbsent(t, "a")
}

func TestPipeline_EmbedderFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.err = errors.New("model unavailable")

	err := f.p.ProcessDocument(context.Background(), "a", "1 0 0")
	require.Error(t, err)
	assert.Equal(t, "Internal", domain.KindOf(err))
	f.assertAbsent(t, "a")
}

func TestPipeline_EmptyDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "empty", "  ;  "))
	assert.Zero(t, f.embedder.calls.Load())
	f.assertSynced(t, "empty")

	got, err := f.p.SearchRelatedChunks(ctx, "0 0 0", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPipeline_RemoveDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.p.RemoveDocument(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrDocumentNotFound)

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0"))
	require.NoError(t, f.p.ProcessDocument(ctx, "b", "0 1 0"))
	require.NoError(t, f.p.RemoveDocument(ctx, "a"))
	f.assertAbsent(t, "a")

	got, err := f.p.SearchRelatedChunks(ctx, "1 0 0", 5)
	require.NoError(t, err)
	for _, r := range got {
		assert.NotEqual(t, "a", r.DocumentID)
	}
	assert.Equal(t, []string{"b"}, f.p.ListDocuments())
}

func TestPipeline_RemoveWithMissingIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0"))
	require.NoError(t, f.store.RemoveDocument(ctx, "a"))

	err := f.p.RemoveDocument(ctx, "a")
	require.ErrorIs(t, err, domain.ErrConsistencyViolation)
	assert.Equal(t, "ConsistencyViolation", domain.KindOf(err))
	f.assertAbsent(t, "a")
}

func TestPipeline_SearchResolutionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0; 0 1 0"))
	// desync the registry behind the pipeline's back
	f.registry.Replace("a", []string{"1 0 0"})

	_, err := f.p.SearchRelatedChunks(ctx, "0 1 0", 2)
	require.ErrorIs(t, err, domain.ErrConsistencyViolation)
	assert.ErrorIs(t, err, domain.ErrPositionOutOfRange)
}

func TestPipeline_SearchQueryDimension(t *testing.T) {
	f := newFixture(t)

	_, err := f.p.SearchRelatedChunks(context.Background(), "1 0", 2)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestPipeline_Reingest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.Reingest(ctx, "a", "1 0 0; 0 1 0; 0 0 1"))
	require.NoError(t, f.p.Reingest(ctx, "a", "0 0 1"))
	f.assertSynced(t, "a")

	n, err := f.store.Count("a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.p.SearchRelatedChunks(ctx, "1 0 0", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Position)
	assert.Equal(t, "0 0 1", got[0].Text)
}

func TestPipeline_ReingestFailureKeepsOldContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0; 0 1 0"))

	f.embedder.err = errors.New("embedder down")
	err := f.p.Reingest(ctx, "a", "5 5 5")
	require.Error(t, err)
	f.embedder.err = nil

	err = f.p.Reingest(ctx, "a", "1 0")
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)

	f.assertSynced(t, "a")
	got, err := f.p.SearchRelatedChunks(ctx, "0 1 0", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.RelatedChunk{DocumentID: "a", Position: 1, Text: "0 1 0", Distance: 0}, got[0])
}

func TestPipeline_ReingestKeepsListingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0"))
	require.NoError(t, f.p.ProcessDocument(ctx, "b", "0 1 0"))
	require.NoError(t, f.p.Reingest(ctx, "a", "0 0 1; 0 0 2"))

	assert.Equal(t, []string{"a", "b"}, f.p.ListDocuments())
	f.assertSynced(t, "a")
}

func TestPipeline_CanceledRemoveLeavesDocumentIntact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.p.ProcessDocument(ctx, "a", "1 0 0"))

	// a search holds the commit lock while the caller gives up
	rctx, cancel := context.WithCancel(ctx)
	f.p.commit.RLock()
	done := make(chan error, 1)
	go func() { done <- f.p.RemoveDocument(rctx, "a") }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	f.p.commit.RUnlock()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, "ConsistencyViolation", domain.KindOf(err))
	f.assertSynced(t, "a")

	got, err := f.p.SearchRelatedChunks(ctx, "1 0 0", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].DocumentID)

	require.NoError(t, f.p.RemoveDocument(ctx, "a"))
	f.assertAbsent(t, "a")
}

func TestPipeline_CanceledProcessCommitsNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.p.ProcessDocument(ctx, "a", "1 0 0")
	require.ErrorIs(t, err, context.Canceled)
	f.assertAbsent(t, "a")

	require.NoError(t, f.p.ProcessDocument(context.Background(), "a", "1 0 0"))
	f.assertSynced(t, "a")
}

func TestPipeline_CrossCheckAndDrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.registry.Replace("a", []string{"x", "y"})
	require.NoError(t, f.store.AddDocument(ctx, "a", [][]float32{{1, 0, 0}}))

	err := f.p.crossCheck("a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry holds 2 chunks, index holds 1 vectors")

	require.NoError(t, f.p.drop(ctx, "a"))
	f.assertAbsent(t, "a")

	// a half-registered document is dropped too
	f.registry.Replace("b", []string{"x"})
	require.Error(t, f.p.crossCheck("b"))
	require.NoError(t, f.p.drop(ctx, "b"))
	f.assertAbsent(t, "b")
}

func TestPipeline_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 0 0;0 1 0"), 0o644))

	loader := ingest.NewLoader(config.LoaderConfig{Extensions: []string{".txt"}})
	f := newFixture(t, WithLoader(loader))

	id, err := f.p.ProcessFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(path), id)
	f.assertSynced(t, id)

	docChunks, err := f.p.Chunks(id)
	require.NoError(t, err)
	assert.Len(t, docChunks, 2)

	_, err = f.p.ProcessFile(context.Background(), filepath.Join(dir, "image.png"))
	assert.Error(t, err)
}

func TestPipeline_ListStatsTopK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"z", "a", "m"} {
		require.NoError(t, f.p.ProcessDocument(ctx, id, "1 0 0; 0 1 0"))
	}
	assert.Equal(t, []string{"z", "a", "m"}, f.p.ListDocuments())

	require.ErrorIs(t, f.p.UpdateTopK(0), retriever.ErrInvalidTopK)
	require.ErrorIs(t, f.p.UpdateTopK(retriever.MaxTopK+1), retriever.ErrInvalidTopK)
	require.NoError(t, f.p.UpdateTopK(2))

	got, err := f.p.SearchRelatedChunks(ctx, "1 0 0", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	assert.Equal(t, Stats{Documents: 3, Chunks: 6, TopK: 2, Backend: vectorindex.FlatL2, Dimension: 3}, f.p.Stats())
}

func TestPipeline_ConcurrentIngestAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("doc-%02d", i)
			assert.NoError(t, f.p.ProcessDocument(ctx, id, fmt.Sprintf("%d 0 0; 0 %d 0", i, i)))
			if i%3 == 0 {
				assert.NoError(t, f.p.RemoveDocument(ctx, id))
			}
		}()
		go func() {
			defer wg.Done()
			_, err := f.p.SearchRelatedChunks(ctx, "1 1 0", 4)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for id := range f.registry.IDs() {
		f.assertSynced(t, id)
	}
	assert.Equal(t, f.registry.Size(), f.store.Len())
	assert.Zero(t, f.p.docLocks.size())
}

func TestPipeline_SameIDConcurrentProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.p.ProcessDocument(ctx, "same", "1 0 0")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadyExists):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dup.Load())
	f.assertSynced(t, "same")
}
