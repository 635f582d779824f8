package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/dganger475/dopp-sub002/faceindex"
	"github.com/dganger475/dopp-sub002/media"
	"github.com/dganger475/dopp-sub002/models"
	"github.com/dganger475/dopp-sub002/repository"
	"gorm.io/gorm"
)

// MatchResult is one ranked similarity hit: the raw L2 distance, the
// calibrated similarity percentage, and the matched record's descriptive
// metadata carried through for the caller.
type MatchResult struct {
	FaceID     uint    `json:"face_id"`
	Filename   string  `json:"filename"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
	Year       *int    `json:"year,omitempty"`
	School     *string `json:"school,omitempty"`
	PageNumber *int    `json:"page_number,omitempty"`
	State      *string `json:"state,omitempty"`
	Decade     *int    `json:"decade,omitempty"`
}

// FaceSearchService serves "who looks like this" queries against the
// currently published index snapshot.
type FaceSearchService struct {
	repo                repository.FaceRepositoryInterface
	index               *faceindex.Manager
	embedder            media.Embedder
	similarityThreshold float64
}

// NewFaceSearchService creates a new face search service. A non-positive
// similarityThreshold falls back to the fixed default calibration.
func NewFaceSearchService(
	repo repository.FaceRepositoryInterface,
	index *faceindex.Manager,
	embedder media.Embedder,
	similarityThreshold float64,
) *FaceSearchService {
	if similarityThreshold <= 0 {
		similarityThreshold = faceindex.DefaultSimilarityThreshold
	}
	return &FaceSearchService{
		repo:                repo,
		index:               index,
		embedder:            embedder,
		similarityThreshold: similarityThreshold,
	}
}

// FindMatches queries the active index with an already-extracted embedding.
// Results are ordered by ascending distance. minSimilarity (a percentage,
// e.g. 70) is applied as a post-filter after distance-to-similarity
// conversion; pass 0 to disable. An empty index yields an empty list;
// faceindex.ErrIndexUnavailable is returned when no index is published.
func (s *FaceSearchService) FindMatches(embedding []float32, k int, minSimilarity float64) ([]MatchResult, error) {
	neighbors, err := s.index.Search(embedding, k)
	if err != nil {
		return nil, err
	}
	if len(neighbors) == 0 {
		return []MatchResult{}, nil
	}

	filenames := make([]string, len(neighbors))
	for i, n := range neighbors {
		filenames[i] = n.Filename
	}
	faces, err := s.repo.GetByFilenames(filenames)
	if err != nil {
		return nil, fmt.Errorf("failed to load match metadata: %w", err)
	}
	byFilename := make(map[string]*models.Face, len(faces))
	for i := range faces {
		byFilename[faces[i].Filename] = &faces[i]
	}

	results := make([]MatchResult, 0, len(neighbors))
	for _, n := range neighbors {
		similarity := faceindex.DistanceToSimilarity(n.Distance, s.similarityThreshold)
		if similarity < minSimilarity {
			continue
		}

		result := MatchResult{
			FaceID:     n.ID,
			Filename:   n.Filename,
			Distance:   n.Distance,
			Similarity: similarity,
		}
		if face, ok := byFilename[n.Filename]; ok {
			result.Year = face.Year
			result.School = face.School
			result.PageNumber = face.PageNumber
			result.State = face.State
			result.Decade = face.Decade
		} else {
			// index/store drift; the reconciler repairs this offline
			log.Printf("search: no record for indexed filename %s", n.Filename)
		}
		results = append(results, result)
	}
	return results, nil
}

// FindMatchesForImage extracts an embedding from a candidate image and
// queries the index with it. "No face detected" yields an empty result
// list, not an error.
func (s *FaceSearchService) FindMatchesForImage(imagePath string, k int, minSimilarity float64) ([]MatchResult, error) {
	if s.embedder == nil {
		return nil, errors.New("no embedding extractor configured")
	}

	embedding, err := s.embedder.ExtractEmbedding(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract query embedding: %w", err)
	}
	if embedding == nil {
		return []MatchResult{}, nil
	}
	return s.FindMatches(embedding, k, minSimilarity)
}

// GetRecord looks up the full face record behind a match.
func (s *FaceSearchService) GetRecord(filename string) (*models.Face, error) {
	face, err := s.repo.GetByFilename(filename)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load record %s: %w", filename, err)
	}
	return face, nil
}
