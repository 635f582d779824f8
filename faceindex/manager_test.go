package faceindex

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dganger475/dopp-sub002/repository"
)

// stubSource serves a fixed eligible set.
type stubSource struct {
	records []repository.EligibleEmbedding
	err     error
}

func (s *stubSource) GetAllEligibleEmbeddings() ([]repository.EligibleEmbedding, error) {
	return s.records, s.err
}

// blockingSource parks inside the snapshot call until released, so a test
// can observe an in-flight rebuild.
type blockingSource struct {
	entered     chan struct{}
	release     chan struct{}
	enteredOnce sync.Once
}

func (s *blockingSource) GetAllEligibleEmbeddings() ([]repository.EligibleEmbedding, error) {
	s.enteredOnce.Do(func() { close(s.entered) })
	<-s.release
	return nil, nil
}

func newTestManager(source EmbeddingSource, dim int, t *testing.T) *Manager {
	dir := t.TempDir()
	return NewManager(source, dim, filepath.Join(dir, "faces.index"), filepath.Join(dir, "faces.index.map"))
}

func TestManagerSearchBeforeRebuild(t *testing.T) {
	m := newTestManager(&stubSource{}, 4, t)
	_, err := m.Search([]float32{0, 0, 0, 0}, 5)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.False(t, m.Available())

	_, err = m.Info()
	assert.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestManagerRebuildAndSearch(t *testing.T) {
	source := &stubSource{records: []repository.EligibleEmbedding{
		{ID: 1, Filename: "a.jpg", Vector: []float32{0, 0, 0, 0}},
		{ID: 2, Filename: "b.jpg", Vector: []float32{1, 0, 0, 0}},
	}}
	m := newTestManager(source, 4, t)

	result, err := m.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, 0, result.Skipped)

	got, err := m.Search([]float32{0, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.jpg", got[0].Filename)

	info, err := m.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Count)
	assert.Equal(t, 4, info.Dim)
	assert.NotEmpty(t, info.BuildID)
}

func TestManagerRebuildDeterministic(t *testing.T) {
	source := &stubSource{records: []repository.EligibleEmbedding{
		{ID: 1, Filename: "a.jpg", Vector: []float32{0, 0, 0, 0}},
		{ID: 2, Filename: "b.jpg", Vector: []float32{1, 0, 0, 0}},
		{ID: 3, Filename: "c.jpg", Vector: []float32{0, 1, 0, 0}},
	}}
	m := newTestManager(source, 4, t)

	_, err := m.Rebuild(context.Background())
	require.NoError(t, err)
	first, err := m.Info()
	require.NoError(t, err)
	firstEntries := append([]Entry(nil), m.snapshot().Entries()...)

	_, err = m.Rebuild(context.Background())
	require.NoError(t, err)
	second, err := m.Info()
	require.NoError(t, err)

	assert.Equal(t, first.Count, second.Count)
	assert.Equal(t, firstEntries, m.snapshot().Entries(), "unchanged record set must yield identical mapping order")
}

func TestManagerRebuildSkipsWrongDimension(t *testing.T) {
	source := &stubSource{records: []repository.EligibleEmbedding{
		{ID: 1, Filename: "ok.jpg", Vector: []float32{0, 0, 0, 0}},
		{ID: 2, Filename: "short.jpg", Vector: []float32{1, 2}},
	}}
	m := newTestManager(source, 4, t)

	result, err := m.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Skipped)
}

func TestManagerRebuildEmptySet(t *testing.T) {
	m := newTestManager(&stubSource{}, 4, t)

	result, err := m.Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Indexed)

	got, err := m.Search([]float32{0, 0, 0, 0}, 5)
	require.NoError(t, err, "published empty index serves empty results")
	assert.Empty(t, got)
}

func TestManagerRejectsConcurrentRebuild(t *testing.T) {
	source := &blockingSource{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(source, 4, t)

	done := make(chan error, 1)
	go func() {
		_, err := m.Rebuild(context.Background())
		done <- err
	}()

	select {
	case <-source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild never started")
	}

	_, err := m.Rebuild(context.Background())
	assert.ErrorIs(t, err, ErrRebuildInProgress)

	close(source.release)
	require.NoError(t, <-done)

	// the slot is free again once the first rebuild finished
	_, err = m.Rebuild(context.Background())
	require.NoError(t, err)
}

func TestManagerRebuildCancellation(t *testing.T) {
	source := &stubSource{records: []repository.EligibleEmbedding{
		{ID: 1, Filename: "a.jpg", Vector: []float32{0, 0, 0, 0}},
	}}
	m := newTestManager(source, 4, t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Rebuild(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Available(), "cancelled rebuild must not publish")
}

func TestManagerLoadRestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "faces.index")
	mappingPath := filepath.Join(dir, "faces.index.map")

	source := &stubSource{records: []repository.EligibleEmbedding{
		{ID: 5, Filename: "a.jpg", Vector: []float32{0.5, 0, 0, 0}},
	}}
	first := NewManager(source, 4, indexPath, mappingPath)
	_, err := first.Rebuild(context.Background())
	require.NoError(t, err)

	// a fresh manager (fresh process) restores from the artifacts alone
	second := NewManager(&stubSource{}, 4, indexPath, mappingPath)
	require.NoError(t, second.Load())
	require.True(t, second.Available())

	got, err := second.Search([]float32{0.5, 0, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint(5), got[0].ID)
}

func TestManagerLoadMissingArtifacts(t *testing.T) {
	m := newTestManager(&stubSource{}, 4, t)
	require.NoError(t, m.Load(), "missing artifacts leave the manager unavailable, not failed")
	assert.False(t, m.Available())
}
