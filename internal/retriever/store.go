package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/vectorindex"
)

// MaxTopK bounds the default number of results a search returns.
const MaxTopK = 128

// ErrInvalidTopK is returned when a top-k value falls outside 1..MaxTopK.
var ErrInvalidTopK = errors.New("invalid top_k")

// Store owns one vector index per document and answers global top-k searches
// by fanning out to every index and merging the local results.
type Store struct {
	backend     vectorindex.Backend
	dimension   int
	parallelism int
	logger      *slog.Logger
	topK        atomic.Int64

	mu      sync.RWMutex
	indices map[string]vectorindex.Index
}

// Option configures a Store
type Option func(*Store)

// WithParallelism bounds how many indices a search scans concurrently.
func WithParallelism(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty store. The backend is resolved here so an
// unregistered kind fails before any document is added.
func NewStore(backend vectorindex.Backend, dimension, topK int, opts ...Option) (*Store, error) {
	if _, err := vectorindex.New(backend, dimension); err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := checkTopK(topK); err != nil {
		return nil, err
	}

	s := &Store{
		backend:     backend,
		dimension:   dimension,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      slog.Default(),
		indices:     make(map[string]vectorindex.Index),
	}
	s.topK.Store(int64(topK))

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddDocument builds an index for id from vectors, replacing any previous
// index for the same id. On failure the previous index stays in place.
func (s *Store) AddDocument(ctx context.Context, id string, vectors [][]float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := vectorindex.New(s.backend, s.dimension)
	if err != nil {
		return domain.WrapError("add", id, err)
	}
	if err := idx.Build(vectors); err != nil {
		return domain.WrapError("add", id, err)
	}

	s.mu.Lock()
	_, replaced := s.indices[id]
	s.indices[id] = idx
	s.mu.Unlock()

	s.logger.Debug("document indexed", "document_id", id, "vectors", len(vectors), "replaced", replaced)
	return nil
}

// RemoveDocument drops the index for id.
func (s *Store) RemoveDocument(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	_, ok := s.indices[id]
	delete(s.indices, id)
	s.mu.Unlock()

	if !ok {
		return domain.WrapError("remove", id, domain.ErrDocumentNotFound)
	}
	s.logger.Debug("document index removed", "document_id", id)
	return nil
}

type entry struct {
	id    string
	index vectorindex.Index
}

// Search returns the topk nearest chunks across all documents, ordered by
// distance then document id then position. A topk <= 0 uses the current default.
func (s *Store) Search(ctx context.Context, query []float32, topk int) ([]domain.SearchResult, error) {
	if topk <= 0 {
		topk = int(s.topK.Load())
	}
	if len(query) != s.dimension {
		return nil, domain.WrapError("search", "", fmt.Errorf("%w: query has length %d, want %d",
			domain.ErrDimensionMismatch, len(query), s.dimension))
	}

	s.mu.RLock()
	entries := make([]entry, 0, len(s.indices))
	for id, idx := range s.indices {
		entries = append(entries, entry{id: id, index: idx})
	}
	s.mu.RUnlock()

	if len(entries) == 0 {
		return []domain.SearchResult{}, nil
	}

	partials := make([][]domain.SearchResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m := min(topk, e.index.Count())
			hits, err := e.index.Search(query, m)
			if err != nil {
				return domain.WrapError("search", e.id, err)
			}
			local := make([]domain.SearchResult, len(hits))
			for j, h := range hits {
				local[j] = domain.SearchResult{DocumentID: e.id, Position: h.Position, Distance: h.Distance}
			}
			partials[i] = local
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return merge(partials, topk), nil
}

// merge concatenates per-document results, ranks them globally and keeps topk.
func merge(partials [][]domain.SearchResult, topk int) []domain.SearchResult {
	total := 0
	for _, p := range partials {
		total += len(p)
	}

	merged := make([]domain.SearchResult, 0, total)
	for _, p := range partials {
		merged = append(merged, p...)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Less(merged[j])
	})

	if topk < len(merged) {
		merged = merged[:topk]
	}
	return merged
}

// UpdateTopK changes the default result count for later searches.
// Searches already running keep the value they started with.
func (s *Store) UpdateTopK(n int) error {
	if err := checkTopK(n); err != nil {
		return err
	}
	old := s.topK.Swap(int64(n))
	s.logger.Info("top_k updated", "old", old, "new", n)
	return nil
}

// TopK returns the default result count
func (s *Store) TopK() int {
	return int(s.topK.Load())
}

// Count returns the number of vectors indexed for id.
func (s *Store) Count(id string) (int, error) {
	s.mu.RLock()
	idx, ok := s.indices[id]
	s.mu.RUnlock()

	if !ok {
		return 0, domain.WrapError("count", id, domain.ErrDocumentNotFound)
	}
	return idx.Count(), nil
}

// Has reports whether an index exists for id
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indices[id]
	return ok
}

// Documents returns the indexed document ids, sorted.
func (s *Store) Documents() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.indices))
	for id := range s.indices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of indexed documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indices)
}

// Dimension returns the configured vector length
func (s *Store) Dimension() int {
	return s.dimension
}

// Backend returns the index backend used for every document
func (s *Store) Backend() vectorindex.Backend {
	return s.backend
}

func checkTopK(n int) error {
	if n < 1 || n > MaxTopK {
		return fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidTopK, n, MaxTopK)
	}
	return nil
}
