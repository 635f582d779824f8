package faceindex

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dganger475/dopp-sub002/repository"
)

// cancelCheckInterval is how many records are stacked between cooperative
// cancellation checks during a rebuild.
const cancelCheckInterval = 256

// EmbeddingSource is the slice of the record store the builder consumes.
type EmbeddingSource interface {
	GetAllEligibleEmbeddings() ([]repository.EligibleEmbedding, error)
}

// BuildInfo describes the currently published snapshot.
type BuildInfo struct {
	BuildID string
	BuiltAt string
	Count   int
	Dim     int
}

// RebuildResult summarizes one completed rebuild.
type RebuildResult struct {
	Indexed  int
	Skipped  int
	Duration time.Duration
}

// Manager owns the index lifecycle: it rebuilds snapshots from the record
// store, persists them atomically, and serves queries against the most
// recently published generation. Queries run with unbounded read
// concurrency; only one rebuild may be in flight at a time.
type Manager struct {
	source      EmbeddingSource
	dim         int
	indexPath   string
	mappingPath string

	mu     sync.RWMutex // guards active and info
	active *Snapshot
	info   BuildInfo

	rebuilding atomic.Bool
}

// NewManager creates an index manager for the given source and artifact
// locations. No snapshot is loaded; call Load or Rebuild before serving.
func NewManager(source EmbeddingSource, dim int, indexPath, mappingPath string) *Manager {
	return &Manager{
		source:      source,
		dim:         dim,
		indexPath:   indexPath,
		mappingPath: mappingPath,
	}
}

// Load restores the previously published snapshot from disk. Missing
// artifacts are not an error: the manager simply stays in the unavailable
// state until the first rebuild.
func (m *Manager) Load() error {
	if _, err := os.Stat(m.indexPath); os.IsNotExist(err) {
		log.Printf("faceindex: no published index at %s, waiting for first rebuild", m.indexPath)
		return nil
	}

	snap, err := ReadSnapshot(m.indexPath, m.mappingPath)
	if err != nil {
		return fmt.Errorf("failed to load published index: %w", err)
	}
	mapping, err := ReadMapping(m.mappingPath)
	if err != nil {
		return err
	}

	m.publish(snap, BuildInfo{
		BuildID: mapping.BuildID,
		BuiltAt: mapping.BuiltAt,
		Count:   snap.Count(),
		Dim:     snap.Dim(),
	})
	log.Printf("faceindex: loaded index build %s (%d embeddings)", mapping.BuildID, snap.Count())
	return nil
}

// Rebuild snapshots the record store's eligible embeddings into a new index
// generation, persists it, and publishes it. A second rebuild requested
// while one is running is rejected with ErrRebuildInProgress. Persistence
// failure leaves the previously published snapshot active.
func (m *Manager) Rebuild(ctx context.Context) (*RebuildResult, error) {
	if !m.rebuilding.CompareAndSwap(false, true) {
		return nil, ErrRebuildInProgress
	}
	defer m.rebuilding.Store(false)

	start := time.Now()

	eligible, err := m.source.GetAllEligibleEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot eligible embeddings: %w", err)
	}

	vectors := make([]float32, 0, len(eligible)*m.dim)
	entries := make([]Entry, 0, len(eligible))
	skipped := 0
	for i := range eligible {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("rebuild cancelled: %w", err)
			}
		}
		rec := &eligible[i]
		if len(rec.Vector) != m.dim {
			log.Printf("faceindex: skipping face %d (%s): embedding has %d dims, want %d",
				rec.ID, rec.Filename, len(rec.Vector), m.dim)
			skipped++
			continue
		}
		vectors = append(vectors, rec.Vector...)
		entries = append(entries, Entry{ID: rec.ID, Filename: rec.Filename})
	}

	snap, err := NewSnapshot(m.dim, vectors, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble index snapshot: %w", err)
	}

	if err := WriteSnapshot(snap, m.indexPath, m.mappingPath); err != nil {
		return nil, fmt.Errorf("failed to persist index snapshot: %w", err)
	}

	mapping, err := ReadMapping(m.mappingPath)
	if err != nil {
		return nil, err
	}
	m.publish(snap, BuildInfo{
		BuildID: mapping.BuildID,
		BuiltAt: mapping.BuiltAt,
		Count:   snap.Count(),
		Dim:     snap.Dim(),
	})

	result := &RebuildResult{
		Indexed:  snap.Count(),
		Skipped:  skipped,
		Duration: time.Since(start),
	}
	log.Printf("faceindex: published build %s: %d indexed, %d skipped in %s",
		mapping.BuildID, result.Indexed, result.Skipped, result.Duration)
	return result, nil
}

// Search queries the active snapshot. ErrIndexUnavailable is returned when
// no snapshot has been published; an empty published index serves empty
// results.
func (m *Manager) Search(query []float32, k int) ([]Neighbor, error) {
	snap := m.snapshot()
	if snap == nil {
		return nil, ErrIndexUnavailable
	}
	return snap.Search(query, k)
}

// Info returns metadata for the active snapshot.
func (m *Manager) Info() (BuildInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return BuildInfo{}, ErrIndexUnavailable
	}
	return m.info, nil
}

// Available reports whether a snapshot has been published.
func (m *Manager) Available() bool {
	return m.snapshot() != nil
}

func (m *Manager) snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

func (m *Manager) publish(snap *Snapshot, info BuildInfo) {
	m.mu.Lock()
	m.active = snap
	m.info = info
	m.mu.Unlock()
}
