package repository

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/dganger475/dopp-sub002/models"
	"gorm.io/gorm"
)

// FaceRepository handles database operations for Face entities
type FaceRepository struct {
	DB *gorm.DB
}

// Ensure FaceRepository implements FaceRepositoryInterface
var _ FaceRepositoryInterface = (*FaceRepository)(nil)

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// Create creates a new face record in the database
func (r *FaceRepository) Create(face *models.Face) error {
	now := time.Now().Unix()
	if face.CreatedAt == 0 {
		face.CreatedAt = now
	}
	face.UpdatedAt = now
	face.ImagePath = filepath.ToSlash(face.ImagePath)
	if face.QualityFlag == "" {
		face.QualityFlag = models.QualityUnknown
	}

	err := r.DB.Create(face).Error
	if err != nil {
		return fmt.Errorf("failed to create face record %s: %w", face.Filename, err)
	}
	return nil
}

// GetByID retrieves a face by its ID
func (r *FaceRepository) GetByID(id uint) (*models.Face, error) {
	var face models.Face
	err := r.DB.First(&face, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get face by ID %d: %w", id, err)
	}
	return &face, nil
}

// GetByFilename retrieves a face by its unique filename
func (r *FaceRepository) GetByFilename(filename string) (*models.Face, error) {
	var face models.Face
	err := r.DB.Where("filename = ?", filename).First(&face).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get face by filename %s: %w", filename, err)
	}
	return &face, nil
}

// GetByFilenames retrieves all faces matching the given filenames
func (r *FaceRepository) GetByFilenames(filenames []string) ([]models.Face, error) {
	if len(filenames) == 0 {
		return nil, nil
	}
	var faces []models.Face
	err := r.DB.Where("filename IN ?", filenames).Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get faces by filenames: %w", err)
	}
	return faces, nil
}

// ListAll retrieves every face record, ordered by ID
func (r *FaceRepository) ListAll() ([]models.Face, error) {
	var faces []models.Face
	err := r.DB.Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces: %w", err)
	}
	return faces, nil
}

// ListMissingEmbeddings retrieves records with an absent or empty embedding,
// ordered by ID. These are the re-extraction candidates.
func (r *FaceRepository) ListMissingEmbeddings() ([]models.Face, error) {
	var faces []models.Face
	err := r.DB.Where("embedding_data IS NULL OR embedding_data = ?", []byte{}).
		Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces with missing embeddings: %w", err)
	}
	return faces, nil
}

// GetAllEligibleEmbeddings returns the decoded embeddings of every record
// eligible for index inclusion: non-empty embedding of the canonical
// dimensionality and a quality flag other than blurry. Results are ordered
// by ID ascending so that rebuilds are deterministic. Records with a
// malformed embedding blob are logged and skipped, never fatal.
func (r *FaceRepository) GetAllEligibleEmbeddings() ([]EligibleEmbedding, error) {
	var faces []models.Face
	err := r.DB.Where("embedding_data IS NOT NULL AND embedding_data != ?", []byte{}).
		Where("quality_flag != ?", models.QualityBlurry).
		Order("id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible embeddings: %w", err)
	}

	eligible := make([]EligibleEmbedding, 0, len(faces))
	for i := range faces {
		vec := faces[i].GetEmbedding()
		if len(vec) != models.EmbeddingDim {
			log.Printf("repository: skipping face %d (%s): embedding has %d dims, want %d",
				faces[i].ID, faces[i].Filename, len(vec), models.EmbeddingDim)
			continue
		}
		eligible = append(eligible, EligibleEmbedding{
			ID:       faces[i].ID,
			Filename: faces[i].Filename,
			Vector:   vec,
		})
	}
	return eligible, nil
}

// UpdateQuality overwrites a record's quality score and flag
func (r *FaceRepository) UpdateQuality(id uint, score float64, flag string) error {
	updates := map[string]interface{}{
		"quality_score": score,
		"quality_flag":  flag,
		"updated_at":    time.Now().Unix(),
	}
	result := r.DB.Model(&models.Face{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update quality for face ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertEmbedding stores a new embedding for the given face ID. An empty
// vector clears the stored embedding (record moves back to no-embedding).
func (r *FaceRepository) UpsertEmbedding(id uint, vector []float32) error {
	var face models.Face
	face.SetEmbedding(vector)

	updates := map[string]interface{}{
		"embedding_data": face.EmbeddingData,
		"updated_at":     time.Now().Unix(),
	}
	result := r.DB.Model(&models.Face{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert embedding for face ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertEmbeddingByFilename stores a new embedding for the given filename
func (r *FaceRepository) UpsertEmbeddingByFilename(filename string, vector []float32) error {
	var face models.Face
	face.SetEmbedding(vector)

	updates := map[string]interface{}{
		"embedding_data": face.EmbeddingData,
		"updated_at":     time.Now().Unix(),
	}
	result := r.DB.Model(&models.Face{}).Where("filename = ?", filename).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to upsert embedding for filename %s: %w", filename, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a face by its ID
func (r *FaceRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Face{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete face ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
