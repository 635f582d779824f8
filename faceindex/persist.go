package faceindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Vector artifact framing. The mapping artifact is JSON and carries its own
// build metadata; the two files are only ever published together.
const (
	magicNumber   = uint32(0x46494458) // "FIDX"
	formatVersion = uint32(1)
)

// Mapping is the serialized identity mapping and build manifest stored next
// to the vector file.
type Mapping struct {
	BuildID string  `json:"build_id"`
	BuiltAt string  `json:"built_at"`
	Dim     int     `json:"dim"`
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// WriteSnapshot persists a snapshot as two co-located artifacts: the binary
// vector block at indexPath and the JSON identity mapping at mappingPath.
// Both are written to temp files in the target directory, synced, and then
// renamed into place so that a concurrent reader never observes a
// half-written index. On failure the temp files are removed and any
// previously published artifacts are left untouched.
func WriteSnapshot(snap *Snapshot, indexPath, mappingPath string) error {
	dir := filepath.Dir(indexPath)
	if filepath.Dir(mappingPath) != dir {
		return fmt.Errorf("index and mapping artifacts must be co-located: %s vs %s", indexPath, mappingPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory %s: %w", dir, err)
	}

	buildID := uuid.NewString()
	mapping := Mapping{
		BuildID: buildID,
		BuiltAt: time.Now().UTC().Format(time.RFC3339),
		Dim:     snap.dim,
		Count:   len(snap.entries),
		Entries: snap.entries,
	}

	var tempFiles []string
	cleanup := func() {
		for _, tmp := range tempFiles {
			_ = os.Remove(tmp)
		}
	}

	writeTemp := func(target string, writeFunc func(*os.File) error) (string, error) {
		tmp, err := os.CreateTemp(dir, filepath.Base(target)+".tmp-*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp file for %s: %w", target, err)
		}
		tempFiles = append(tempFiles, tmp.Name())
		if err := writeFunc(tmp); err != nil {
			_ = tmp.Close()
			return "", err
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return "", fmt.Errorf("failed to sync temp file for %s: %w", target, err)
		}
		if err := tmp.Close(); err != nil {
			return "", fmt.Errorf("failed to close temp file for %s: %w", target, err)
		}
		return tmp.Name(), nil
	}

	indexTmp, err := writeTemp(indexPath, func(f *os.File) error {
		return writeVectors(f, snap)
	})
	if err != nil {
		cleanup()
		return err
	}

	mappingTmp, err := writeTemp(mappingPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		if err := enc.Encode(&mapping); err != nil {
			return fmt.Errorf("failed to encode identity mapping: %w", err)
		}
		return nil
	})
	if err != nil {
		cleanup()
		return err
	}

	// Rename both temp files into place (atomic on POSIX filesystems)
	if err := os.Rename(indexTmp, indexPath); err != nil {
		cleanup()
		return fmt.Errorf("failed to publish vector file: %w", err)
	}
	if err := os.Rename(mappingTmp, mappingPath); err != nil {
		_ = os.Remove(mappingTmp)
		return fmt.Errorf("failed to publish identity mapping: %w", err)
	}
	return nil
}

func writeVectors(f *os.File, snap *Snapshot) error {
	w := bufio.NewWriter(f)
	header := []uint32{magicNumber, formatVersion, uint32(snap.dim), uint32(len(snap.entries))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write vector file header: %w", err)
		}
	}
	if err := binary.Write(w, binary.LittleEndian, snap.vectors); err != nil {
		return fmt.Errorf("failed to write vector block: %w", err)
	}
	return w.Flush()
}

// ReadSnapshot loads a previously published snapshot from its two
// artifacts. The vector and mapping counts are cross-checked; a mismatch
// means the artifacts were replaced independently and the pair is rejected.
func ReadSnapshot(indexPath, mappingPath string) (*Snapshot, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic, version, dim, count uint32
	for _, dst := range []*uint32{&magic, &version, &dim, &count} {
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return nil, fmt.Errorf("failed to read vector file header: %w", err)
		}
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("vector file %s has bad magic %#x", indexPath, magic)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("vector file %s has unsupported version %d", indexPath, version)
	}
	if dim == 0 {
		return nil, fmt.Errorf("vector file %s declares zero dimension", indexPath)
	}

	vectors := make([]float32, int(dim)*int(count))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return nil, fmt.Errorf("failed to read vector block: %w", err)
	}

	mapping, err := ReadMapping(mappingPath)
	if err != nil {
		return nil, err
	}
	if mapping.Count != int(count) || len(mapping.Entries) != int(count) {
		return nil, fmt.Errorf("identity mapping %s has %d entries, vector file has %d",
			mappingPath, len(mapping.Entries), count)
	}
	if mapping.Dim != int(dim) {
		return nil, fmt.Errorf("identity mapping %s declares dim %d, vector file has %d",
			mappingPath, mapping.Dim, dim)
	}

	return NewSnapshot(int(dim), vectors, mapping.Entries)
}

// ReadMapping loads just the identity mapping / build manifest.
func ReadMapping(mappingPath string) (*Mapping, error) {
	data, err := os.ReadFile(mappingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity mapping: %w", err)
	}
	var mapping Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity mapping: %w", err)
	}
	return &mapping, nil
}
