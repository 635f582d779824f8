// Package faceindex maintains a flat, exhaustively scanned L2 index over
// face embeddings. The index is a derived artifact: it is always rebuilt
// whole from a record store snapshot and published atomically, never
// mutated in place.
package faceindex

import (
	"fmt"
	"math"
	"sort"
)

// Entry identifies the record behind one index position.
type Entry struct {
	ID       uint   `json:"id"`
	Filename string `json:"filename"`
}

// Snapshot is one immutable, position-aligned index generation: vector i in
// the flat block corresponds to Entries[i]. Snapshots are never modified
// after construction, so readers need no locking.
type Snapshot struct {
	dim     int
	vectors []float32 // len == dim * len(entries)
	entries []Entry
}

// NewSnapshot builds a snapshot from a flat vector block and its parallel
// identity mapping.
func NewSnapshot(dim int, vectors []float32, entries []Entry) (*Snapshot, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dim)
	}
	if len(vectors) != dim*len(entries) {
		return nil, fmt.Errorf("vector block has %d floats, want %d (%d entries x %d dims)",
			len(vectors), dim*len(entries), len(entries), dim)
	}
	return &Snapshot{dim: dim, vectors: vectors, entries: entries}, nil
}

// Count returns the number of indexed embeddings.
func (s *Snapshot) Count() int {
	return len(s.entries)
}

// Dim returns the index dimensionality.
func (s *Snapshot) Dim() int {
	return s.dim
}

// Entries returns the ordered identity mapping.
func (s *Snapshot) Entries() []Entry {
	return s.entries
}

// Neighbor is one nearest-neighbor hit with its raw L2 distance.
type Neighbor struct {
	Entry
	Distance float64
}

// Search runs an exhaustive L2 scan against the snapshot and returns up to
// k nearest neighbors, ordered by ascending distance with ties broken by
// ascending record id. An empty snapshot yields an empty result.
func (s *Snapshot) Search(query []float32, k int) ([]Neighbor, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dims, index has %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if k <= 0 || len(s.entries) == 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, len(s.entries))
	for i := range s.entries {
		vec := s.vectors[i*s.dim : (i+1)*s.dim]
		neighbors[i] = Neighbor{
			Entry:    s.entries[i],
			Distance: l2Distance(query, vec),
		}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].ID < neighbors[j].ID
	})

	if k > len(neighbors) {
		k = len(neighbors)
	}
	return neighbors[:k], nil
}

// l2Distance computes the Euclidean distance between two equal-length
// vectors in float64 for stable similarity calibration.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
