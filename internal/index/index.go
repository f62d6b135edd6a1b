// Package index implements an exact (flat) nearest-neighbour index over
// float32 vectors with squared Euclidean distance, plus its on-disk snapshot.
package index

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// Metric names the distance function, reported in stats.
const Metric = "flat-l2"

// Entry is one indexed chunk. ID is the insertion position, assigned by Insert.
// Vectors are treated as immutable once inserted.
type Entry struct {
	ID       int
	Vector   []float32
	Text     string
	Metadata domain.ChunkMetadata
}

// Hit is a search result. Lower Distance means more similar.
type Hit struct {
	Entry    Entry
	Distance float32
}

// Index is safe for concurrent use: searches share a read lock, inserts are exclusive.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []Entry
}

// New creates an empty index. Its dimension is fixed by the first insert.
func New() *Index {
	return &Index{}
}

// FromEntries rebuilds an index from persisted entries, renumbering IDs in order.
func FromEntries(dim int, entries []Entry) (*Index, error) {
	idx := New()
	if len(entries) == 0 {
		idx.dim = dim
		return idx, nil
	}
	if err := idx.Insert(entries); err != nil {
		return nil, err
	}
	if dim != 0 && idx.dim != dim {
		return nil, fmt.Errorf("%w: entries have %d, header says %d", domain.ErrDimensionMismatch, idx.dim, dim)
	}
	return idx, nil
}

// Insert appends entries atomically: either all are added or none.
func (x *Index) Insert(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dim
	if dim == 0 {
		dim = len(entries[0].Vector)
	}
	if dim == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrDimensionMismatch)
	}
	for i := range entries {
		if got := len(entries[i].Vector); got != dim {
			return fmt.Errorf("%w: entry %d has %d, want %d", domain.ErrDimensionMismatch, i, got, dim)
		}
	}

	base := len(x.entries)
	for i, e := range entries {
		e.ID = base + i
		x.entries = append(x.entries, e)
	}
	x.dim = dim
	return nil
}

// Search returns the min(k, Size()) nearest entries, ascending by distance,
// ties broken by insertion order.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(query), x.dim)
	}

	k = min(k, len(x.entries))
	h := make(maxHeap, 0, k)
	for i := range x.entries {
		d := squaredL2(query, x.entries[i].Vector)
		switch {
		case len(h) < k:
			heap.Push(&h, candidate{pos: i, dist: d})
		case closer(candidate{pos: i, dist: d}, h[0]):
			h[0] = candidate{pos: i, dist: d}
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return closer(h[i], h[j]) })
	hits := make([]Hit, len(h))
	for i, c := range h {
		hits[i] = Hit{Entry: x.entries[c.pos], Distance: c.dist}
	}
	return hits, nil
}

// Size returns the number of entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimension returns the vector length, 0 until the first insert.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Entries returns a copy of the entry list. Vectors are shared.
func (x *Index) Entries() []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]Entry(nil), x.entries...)
}

// Clone returns an independent index with the same entries.
// Inserting into the clone does not affect x.
func (x *Index) Clone() *Index {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return &Index{dim: x.dim, entries: append([]Entry(nil), x.entries...)}
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

type candidate struct {
	pos  int
	dist float32
}

// closer orders by distance, then by insertion position.
func closer(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.pos < b.pos
}

// maxHeap keeps the current k best with the worst on top.
type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(v any)        { *h = append(*h, v.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}
