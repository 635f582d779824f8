package faceindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactPaths(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "faces.index"), filepath.Join(dir, "faces.index.map")
}

func TestWriteReadSnapshotRoundTrip(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "a.jpg"}, {ID: 7, Filename: "b.jpg"}},
		vec(0.1, 0.2, 0.3, 0.4),
		vec(1, 2, 3, 4),
	)
	require.NoError(t, WriteSnapshot(snap, indexPath, mappingPath))

	loaded, err := ReadSnapshot(indexPath, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, 4, loaded.Dim())
	assert.Equal(t, snap.Entries(), loaded.Entries())

	// a fresh load must serve identical search results
	got, err := loaded.Search(vec(0.1, 0.2, 0.3, 0.4), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.jpg", got[0].Filename)
	assert.InDelta(t, 0, got[0].Distance, 1e-6)
}

func TestWriteSnapshotReplacesPrevious(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	first := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "old.jpg"}},
		vec(0, 0, 0, 0),
	)
	require.NoError(t, WriteSnapshot(first, indexPath, mappingPath))

	second := buildTestSnapshot(t, 4,
		[]Entry{{ID: 2, Filename: "new.jpg"}, {ID: 3, Filename: "newer.jpg"}},
		vec(1, 0, 0, 0),
		vec(0, 1, 0, 0),
	)
	require.NoError(t, WriteSnapshot(second, indexPath, mappingPath))

	loaded, err := ReadSnapshot(indexPath, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, "new.jpg", loaded.Entries()[0].Filename)
}

func TestWriteSnapshotEmptyIndex(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	snap := buildTestSnapshot(t, 4, nil)
	require.NoError(t, WriteSnapshot(snap, indexPath, mappingPath))

	loaded, err := ReadSnapshot(indexPath, mappingPath)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Count())
}

func TestWriteSnapshotLeavesNoTempFiles(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	snap := buildTestSnapshot(t, 4, []Entry{{ID: 1, Filename: "a.jpg"}}, vec(0, 0, 0, 0))
	require.NoError(t, WriteSnapshot(snap, indexPath, mappingPath))

	entries, err := os.ReadDir(filepath.Dir(indexPath))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the two published artifacts should remain")
}

func TestWriteSnapshotRejectsSplitDirectories(t *testing.T) {
	snap := buildTestSnapshot(t, 4, nil)
	err := WriteSnapshot(snap, filepath.Join(t.TempDir(), "faces.index"), filepath.Join(t.TempDir(), "faces.index.map"))
	assert.Error(t, err)
}

func TestReadSnapshotRejectsMismatchedPair(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	snap := buildTestSnapshot(t, 4,
		[]Entry{{ID: 1, Filename: "a.jpg"}, {ID: 2, Filename: "b.jpg"}},
		vec(0, 0, 0, 0),
		vec(1, 0, 0, 0),
	)
	require.NoError(t, WriteSnapshot(snap, indexPath, mappingPath))

	// replace the mapping independently; the pair must be rejected
	other := buildTestSnapshot(t, 4, []Entry{{ID: 1, Filename: "a.jpg"}}, vec(0, 0, 0, 0))
	otherDir := t.TempDir()
	otherIndex := filepath.Join(otherDir, "faces.index")
	otherMapping := filepath.Join(otherDir, "faces.index.map")
	require.NoError(t, WriteSnapshot(other, otherIndex, otherMapping))

	data, err := os.ReadFile(otherMapping)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mappingPath, data, 0o644))

	_, err = ReadSnapshot(indexPath, mappingPath)
	assert.Error(t, err)
}

func TestReadSnapshotRejectsCorruptHeader(t *testing.T) {
	indexPath, mappingPath := artifactPaths(t)

	snap := buildTestSnapshot(t, 4, []Entry{{ID: 1, Filename: "a.jpg"}}, vec(0, 0, 0, 0))
	require.NoError(t, WriteSnapshot(snap, indexPath, mappingPath))

	require.NoError(t, os.WriteFile(indexPath, []byte("not an index"), 0o644))
	_, err := ReadSnapshot(indexPath, mappingPath)
	assert.Error(t, err)
}
