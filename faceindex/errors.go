package faceindex

import "errors"

var (
	// ErrIndexUnavailable is returned when no index snapshot has been
	// published yet. Distinct from an empty index, which serves empty
	// results.
	ErrIndexUnavailable = errors.New("face index unavailable")

	// ErrRebuildInProgress is returned when a rebuild is requested while
	// another rebuild is still running. Rebuilds are single-writer.
	ErrRebuildInProgress = errors.New("index rebuild already in progress")

	// ErrDimensionMismatch is returned when a query vector does not match
	// the index dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
