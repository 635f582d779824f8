package repository

import (
	"github.com/dganger475/dopp-sub002/models"
)

// EligibleEmbedding is one index-eligible record: a decoded embedding plus
// the identity the index carries alongside it.
type EligibleEmbedding struct {
	ID       uint
	Filename string
	Vector   []float32
}

// FaceRepositoryInterface defines the methods for face data operations
type FaceRepositoryInterface interface {
	Create(face *models.Face) error
	GetByID(id uint) (*models.Face, error)
	GetByFilename(filename string) (*models.Face, error)
	GetByFilenames(filenames []string) ([]models.Face, error)
	ListAll() ([]models.Face, error)
	ListMissingEmbeddings() ([]models.Face, error)
	GetAllEligibleEmbeddings() ([]EligibleEmbedding, error)
	UpdateQuality(id uint, score float64, flag string) error
	UpsertEmbedding(id uint, vector []float32) error
	UpsertEmbeddingByFilename(filename string, vector []float32) error
	Delete(id uint) error
}
