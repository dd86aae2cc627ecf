package vectorindex

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/docmentor/docmentor/internal/domain"
)

// snapshot is an immutable set of vectors stored row-major.
type snapshot struct {
	data []float32
	n    int
}

type flatIndex struct {
	kind   Backend
	dim    int
	metric func(a, b []float32) float32
	snap   atomic.Pointer[snapshot]
}

func newFlat(kind Backend, dim int, metric func(a, b []float32) float32) *flatIndex {
	idx := &flatIndex{kind: kind, dim: dim, metric: metric}
	idx.snap.Store(&snapshot{})
	return idx
}

func (f *flatIndex) Build(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: vector %d has length %d, want %d", domain.ErrDimensionMismatch, i, len(v), f.dim)
		}
	}

	data := make([]float32, 0, len(vectors)*f.dim)
	for _, v := range vectors {
		data = append(data, v...)
	}
	f.snap.Store(&snapshot{data: data, n: len(vectors)})
	return nil
}

func (f *flatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has length %d, want %d", domain.ErrDimensionMismatch, len(query), f.dim)
	}

	s := f.snap.Load()
	if s.n == 0 || k <= 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, s.n)
	for i := 0; i < s.n; i++ {
		row := s.data[i*f.dim : (i+1)*f.dim]
		hits[i] = Hit{Position: i, Distance: f.metric(query, row)}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func (f *flatIndex) Count() int {
	return f.snap.Load().n
}

func (f *flatIndex) Dimension() int {
	return f.dim
}

func (f *flatIndex) Kind() Backend {
	return f.kind
}
