package chunks

import (
	"iter"
	"slices"
	"sync"

	"github.com/docmentor/docmentor/internal/domain"
)

// Registry maps document ids to their ordered chunk texts.
// It is the source of truth for chunk content and is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	chunks map[string][]string
	order  []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		chunks: make(map[string][]string),
	}
}

// Put stores chunks for a new document. It fails with ErrAlreadyExists
// if the id is present; use Replace to overwrite.
func (r *Registry) Put(id string, chunks []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chunks[id]; ok {
		return domain.WrapError("put", id, domain.ErrAlreadyExists)
	}
	r.chunks[id] = slices.Clone(chunks)
	r.order = append(r.order, id)
	return nil
}

// Replace stores chunks for id, overwriting any previous set.
// An existing id keeps its place in the listing order.
func (r *Registry) Replace(id string, chunks []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chunks[id]; !ok {
		r.order = append(r.order, id)
	}
	r.chunks[id] = slices.Clone(chunks)
}

// Get returns the chunk text at position.
func (r *Registry) Get(id string, position int) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunks, ok := r.chunks[id]
	if !ok {
		return "", domain.WrapError("get", id, domain.ErrDocumentNotFound)
	}
	if position < 0 || position >= len(chunks) {
		return "", domain.WrapError("get", id, domain.ErrPositionOutOfRange)
	}
	return chunks[position], nil
}

// Chunks returns a copy of all chunks of a document in position order.
func (r *Registry) Chunks(id string) ([]domain.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	texts, ok := r.chunks[id]
	if !ok {
		return nil, domain.WrapError("chunks", id, domain.ErrDocumentNotFound)
	}
	out := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		out[i] = domain.Chunk{DocumentID: id, Position: i, Text: text}
	}
	return out, nil
}

// Remove deletes all chunks of a document.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chunks[id]; !ok {
		return domain.WrapError("remove", id, domain.ErrDocumentNotFound)
	}
	delete(r.chunks, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return nil
}

// Len returns the number of chunks stored for id.
func (r *Registry) Len(id string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chunks, ok := r.chunks[id]
	if !ok {
		return 0, domain.WrapError("len", id, domain.ErrDocumentNotFound)
	}
	return len(chunks), nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chunks[id]
	return ok
}

// Size returns the number of registered documents.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// TotalChunks returns the number of chunks across all documents.
func (r *Registry) TotalChunks() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, chunks := range r.chunks {
		n += len(chunks)
	}
	return n
}

// IDs returns the registered ids in insertion order. Every range over the
// sequence walks a snapshot taken when that range starts.
func (r *Registry) IDs() iter.Seq[string] {
	return func(yield func(string) bool) {
		r.mu.RLock()
		snapshot := slices.Clone(r.order)
		r.mu.RUnlock()

		for _, id := range snapshot {
			if !yield(id) {
				return
			}
		}
	}
}
