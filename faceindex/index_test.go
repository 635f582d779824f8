package faceindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vec builds a 4-dim test vector.
func vec(values ...float32) []float32 {
	return values
}

func buildTestSnapshot(t *testing.T, dim int, entries []Entry, vectors ...[]float32) *Snapshot {
	t.Helper()
	var flat []float32
	for _, v := range vectors {
		flat = append(flat, v...)
	}
	snap, err := NewSnapshot(dim, flat, entries)
	require.NoError(t, err)
	return snap
}

func TestNewSnapshotValidation(t *testing.T) {
	_, err := NewSnapshot(0, nil, nil)
	assert.Error(t, err)

	_, err = NewSnapshot(4, []float32{1, 2, 3}, []Entry{{ID: 1, Filename: "a.jpg"}})
	assert.Error(t, err, "vector block length must equal dim*entries")
}

func TestSnapshotSearchOrdering(t *testing.T) {
	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "near.jpg"}, {ID: 2, Filename: "far.jpg"}, {ID: 3, Filename: "mid.jpg"}},
		vec(0, 0, 0, 0),
		vec(1, 1, 1, 1),
		vec(0.5, 0, 0, 0),
	)

	got, err := snap.Search(vec(0, 0, 0, 0), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "near.jpg", got[0].Filename)
	assert.InDelta(t, 0, got[0].Distance, 1e-9)
	assert.Equal(t, "mid.jpg", got[1].Filename)
	assert.InDelta(t, 0.5, got[1].Distance, 1e-6)
	assert.Equal(t, "far.jpg", got[2].Filename)
	assert.InDelta(t, 2, got[2].Distance, 1e-6)
}

func TestSnapshotSearchTieBreakByID(t *testing.T) {
	// two identical vectors: the lower record id must rank first
	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 9, Filename: "nine.jpg"}, {ID: 2, Filename: "two.jpg"}},
		vec(1, 0, 0, 0),
		vec(1, 0, 0, 0),
	)

	got, err := snap.Search(vec(1, 0, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(2), got[0].ID)
	assert.Equal(t, uint(9), got[1].ID)
}

func TestSnapshotSearchKClamp(t *testing.T) {
	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "a.jpg"}, {ID: 2, Filename: "b.jpg"}},
		vec(0, 0, 0, 0),
		vec(1, 0, 0, 0),
	)

	got, err := snap.Search(vec(0, 0, 0, 0), 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = snap.Search(vec(0, 0, 0, 0), 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = snap.Search(vec(0, 0, 0, 0), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotSearchEmptyIndex(t *testing.T) {
	snap := buildTestSnapshot(t, 4, nil)
	got, err := snap.Search(vec(0, 0, 0, 0), 5)
	require.NoError(t, err, "empty index serves empty results, not an error")
	assert.Empty(t, got)
}

func TestSnapshotSearchDimensionMismatch(t *testing.T) {
	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "a.jpg"}},
		vec(0, 0, 0, 0),
	)
	_, err := snap.Search([]float32{1, 2}, 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
