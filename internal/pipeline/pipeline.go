// Package pipeline turns documents into searchable chunks. It keeps the
// chunk registry and the vector store in step: every registered document
// has exactly one index whose vector count equals its chunk count.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/docmentor/docmentor/internal/chunks"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/ingest"
	"github.com/docmentor/docmentor/internal/retriever"
	"github.com/docmentor/docmentor/internal/vectorindex"
)

// Splitter cuts document text into ordered chunks
type Splitter interface {
	Split(text string) []string
}

// Embedder turns texts into vectors, one per text and in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Stats summarizes the pipeline state
type Stats struct {
	Documents int                 `json:"documents"`
	Chunks    int                 `json:"chunks"`
	TopK      int                 `json:"top_k"`
	Backend   vectorindex.Backend `json:"backend"`
	Dimension int                 `json:"dimension"`
}

// Pipeline ingests, removes and searches documents
type Pipeline struct {
	splitter Splitter
	embedder Embedder
	registry *chunks.Registry
	store    *retriever.Store
	loader   *ingest.Loader
	logger   *slog.Logger

	docLocks *keyLock
	// commit guards registry+store mutations (write) against the
	// search-and-resolve section (read).
	commit sync.RWMutex
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLoader sets the file loader used by ProcessFile
func WithLoader(loader *ingest.Loader) Option {
	return func(p *Pipeline) { p.loader = loader }
}

// New creates a pipeline over an existing registry and store
func New(splitter Splitter, embedder Embedder, registry *chunks.Registry, store *retriever.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		splitter: splitter,
		embedder: embedder,
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		docLocks: newKeyLock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument splits, embeds and registers a new document.
// An id that is already present fails with ErrAlreadyExists.
func (p *Pipeline) ProcessDocument(ctx context.Context, id, text string) error {
	unlock := p.docLocks.Lock(id)
	defer unlock()

	return p.fail("process", id, p.process(ctx, id, text))
}

// Reingest replaces a document's content, processing it as new when absent.
// The new text is embedded before anything is touched, so a failure keeps
// the previous content searchable.
func (p *Pipeline) Reingest(ctx context.Context, id, text string) error {
	unlock := p.docLocks.Lock(id)
	defer unlock()

	if !p.registry.Has(id) {
		return p.fail("reingest", id, p.process(ctx, id, text))
	}
	return p.fail("reingest", id, p.replace(ctx, id, text))
}

// ProcessFile loads a file and ingests it under its cleaned path
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (string, error) {
	if p.loader == nil {
		return "", p.fail("process_file", path, errors.New("no loader configured"))
	}
	doc, err := p.loader.LoadFile(path)
	if err != nil {
		return "", p.fail("process_file", path, err)
	}
	if err := p.ProcessDocument(ctx, doc.ID, doc.Text); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

func (p *Pipeline) process(ctx context.Context, id, text string) error {
	if id == "" {
		return errors.New("document id must not be empty")
	}
	if p.registry.Has(id) {
		return domain.WrapError("process", id, domain.ErrAlreadyExists)
	}

	parts, vectors, err := p.embed(ctx, id, text)
	if err != nil {
		return err
	}

	p.commit.Lock()
	defer p.commit.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	// past this point the commit runs to completion
	ctx = context.WithoutCancel(ctx)

	if err := p.registry.Put(id, parts); err != nil {
		return err
	}
	if err := p.store.AddDocument(ctx, id, vectors); err != nil {
		if rbErr := p.registry.Remove(id); rbErr != nil {
			return domain.Inconsistent("process", id, errors.Join(err, rbErr))
		}
		return err
	}

	if err := p.crossCheck(id); err != nil {
		return domain.Inconsistent("process", id, errors.Join(err, p.drop(ctx, id)))
	}

	p.logger.Info("document processed", "document_id", id, "chunks", len(parts))
	return nil
}

// replace swaps in new content for a registered document. The index is
// rebuilt first: a rejected build leaves both halves on the old content.
func (p *Pipeline) replace(ctx context.Context, id, text string) error {
	parts, vectors, err := p.embed(ctx, id, text)
	if err != nil {
		return err
	}

	p.commit.Lock()
	defer p.commit.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	if err := p.store.AddDocument(ctx, id, vectors); err != nil {
		return err
	}
	p.registry.Replace(id, parts)

	if err := p.crossCheck(id); err != nil {
		return domain.Inconsistent("reingest", id, errors.Join(err, p.drop(ctx, id)))
	}

	p.logger.Info("document replaced", "document_id", id, "chunks", len(parts))
	return nil
}

// embed splits text and embeds the parts. Empty documents skip the embedder.
func (p *Pipeline) embed(ctx context.Context, id, text string) ([]string, [][]float32, error) {
	parts := p.splitter.Split(text)
	vectors := [][]float32{}
	if len(parts) > 0 {
		var err error
		vectors, err = p.embedder.Embed(ctx, parts)
		if err != nil {
			return nil, nil, domain.WrapError("embed", id, err)
		}
	}
	if len(vectors) != len(parts) {
		return nil, nil, domain.Inconsistent("process", id,
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(parts)))
	}
	return parts, vectors, nil
}

// crossCheck verifies the registry and the index agree on id's chunk count.
// Callers hold the commit lock.
func (p *Pipeline) crossCheck(id string) error {
	registered, regErr := p.registry.Len(id)
	indexed, idxErr := p.store.Count(id)
	if err := errors.Join(regErr, idxErr); err != nil {
		return err
	}
	if registered != indexed {
		return fmt.Errorf("registry holds %d chunks, index holds %d vectors", registered, indexed)
	}
	return nil
}

// drop removes both halves of id after a failed commit and reports what
// could not be removed. Callers hold the commit lock.
func (p *Pipeline) drop(ctx context.Context, id string) error {
	var errs []error
	if p.store.Has(id) {
		if err := p.store.RemoveDocument(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("rollback index: %w", err))
		}
	}
	if p.registry.Has(id) {
		if err := p.registry.Remove(id); err != nil {
			errs = append(errs, fmt.Errorf("rollback chunks: %w", err))
		}
	}
	return errors.Join(errs...)
}

// RemoveDocument drops a document's index and chunks
func (p *Pipeline) RemoveDocument(ctx context.Context, id string) error {
	unlock := p.docLocks.Lock(id)
	defer unlock()

	return p.fail("remove", id, p.remove(ctx, id))
}

func (p *Pipeline) remove(ctx context.Context, id string) error {
	if !p.registry.Has(id) {
		return domain.WrapError("remove", id, domain.ErrDocumentNotFound)
	}

	p.commit.Lock()
	defer p.commit.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	// the index goes first so a search can never hit chunks that are gone
	if err := p.store.RemoveDocument(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			return domain.Inconsistent("remove", id, err)
		}
		// chunks without an index: dropping them restores the pairing
		if regErr := p.registry.Remove(id); regErr != nil {
			err = errors.Join(err, regErr)
		}
		return domain.Inconsistent("remove", id, err)
	}
	if err := p.registry.Remove(id); err != nil {
		return domain.Inconsistent("remove", id, err)
	}

	p.logger.Info("document removed", "document_id", id)
	return nil
}

// SearchRelatedChunks embeds query and returns the nearest chunks with
// their text. A topk <= 0 uses the store default.
func (p *Pipeline) SearchRelatedChunks(ctx context.Context, query string, topk int) ([]domain.RelatedChunk, error) {
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, p.fail("search", "", domain.WrapError("embed", "", err))
	}
	if len(vectors) != 1 {
		return nil, p.fail("search", "", fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors)))
	}

	p.commit.RLock()
	defer p.commit.RUnlock()

	results, err := p.store.Search(ctx, vectors[0], topk)
	if err != nil {
		return nil, p.fail("search", "", err)
	}

	related := make([]domain.RelatedChunk, 0, len(results))
	for _, r := range results {
		text, err := p.registry.Get(r.DocumentID, r.Position)
		if err != nil {
			return nil, p.fail("search", r.DocumentID, domain.Inconsistent("search", r.DocumentID, err))
		}
		related = append(related, domain.RelatedChunk{
			DocumentID: r.DocumentID,
			Position:   r.Position,
			Text:       text,
			Distance:   r.Distance,
		})
	}
	return related, nil
}

// Chunks returns the stored chunks of a document
func (p *Pipeline) Chunks(id string) ([]domain.Chunk, error) {
	out, err := p.registry.Chunks(id)
	return out, p.fail("chunks", id, err)
}

// ListDocuments returns document ids in insertion order
func (p *Pipeline) ListDocuments() []string {
	return slices.Collect(p.registry.IDs())
}

// UpdateTopK changes the default number of search results
func (p *Pipeline) UpdateTopK(n int) error {
	return p.fail("update_top_k", "", p.store.UpdateTopK(n))
}

// Stats returns a summary of the pipeline state
func (p *Pipeline) Stats() Stats {
	p.commit.RLock()
	defer p.commit.RUnlock()

	return Stats{
		Documents: p.registry.Size(),
		Chunks:    p.registry.TotalChunks(),
		TopK:      p.store.TopK(),
		Backend:   p.store.Backend(),
		Dimension: p.store.Dimension(),
	}
}

// fail logs a failed operation and passes err through unchanged.
func (p *Pipeline) fail(op, id string, err error) error {
	if err == nil {
		return nil
	}
	kind := domain.KindOf(err)
	if kind == "ConsistencyViolation" {
		p.logger.Error("operation failed", "op", op, "document_id", id, "kind", kind, "error", err)
	} else {
		p.logger.Warn("operation failed", "op", op, "document_id", id, "kind", kind, "error", err)
	}
	return err
}
