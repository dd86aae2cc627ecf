package vectorindex

import (
	"fmt"
	"strings"

	"github.com/docmentor/docmentor/internal/domain"
)

// Hit is one local search result of a single index.
type Hit struct {
	Position int     `json:"position"`
	Distance float32 `json:"distance"`
}

// Index is a similarity-searchable container for one document's chunk vectors,
// addressed by chunk position.
type Index interface {
	// Build replaces all contents with vectors, position i taking vectors[i].
	// A failed build leaves the previous contents untouched.
	Build(vectors [][]float32) error

	// Search returns the min(k, Count()) nearest positions, ascending by distance.
	Search(query []float32, k int) ([]Hit, error)

	// Count returns the number of stored vectors
	Count() int

	// Dimension returns the configured vector length
	Dimension() int

	// Kind returns the backend implementing this index
	Kind() Backend
}

// Backend identifies an index implementation.
type Backend string

const (
	// FlatL2 scans every vector and ranks by squared Euclidean distance.
	FlatL2 Backend = "flat_l2"
	// FlatCosine scans every vector and ranks by cosine distance (1 - cosine similarity).
	FlatCosine Backend = "flat_cosine"
)

// DefaultBackend is used when no backend is configured.
const DefaultBackend = FlatL2

// Factory constructs an empty index of the given dimension.
type Factory func(dim int) Index

var backends = map[Backend]Factory{
	FlatL2:     func(dim int) Index { return newFlat(FlatL2, dim, squaredL2) },
	FlatCosine: func(dim int) Index { return newFlat(FlatCosine, dim, cosineDistance) },
}

var aliases = map[string]Backend{
	"faiss": FlatL2,
	"flat":  FlatL2,
	"l2":    FlatL2,
}

// ParseBackend resolves a configuration value to a registered backend.
// An empty value selects DefaultBackend.
func ParseBackend(s string) (Backend, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultBackend, nil
	}
	if b, ok := aliases[name]; ok {
		return b, nil
	}
	b := Backend(name)
	if _, ok := backends[b]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownBackend, s)
	}
	return b, nil
}

// New creates an empty index of the given backend.
func New(kind Backend, dim int) (Index, error) {
	factory, ok := backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBackend, string(kind))
	}
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return factory(dim), nil
}

// Backends lists the registered backends.
func Backends() []Backend {
	return []Backend{FlatL2, FlatCosine}
}

func (b Backend) String() string {
	return string(b)
}
