package models

import (
	"math"

	"gorm.io/gorm"
)

// EmbeddingDim is the canonical length of a stored face embedding. Every
// embedding written to or read from the store is exactly this many float32
// values; anything else is treated as malformed.
const EmbeddingDim = 128

// Quality flags assigned by the quality assessor. A face stays 'unknown'
// until it has been assessed at least once.
const (
	QualityGood        = "good"
	QualityBlurry      = "blurry"
	QualityLowContrast = "low_contrast"
	QualityDark        = "dark"
	QualityUnknown     = "unknown"
)

// Face represents one known face image and its extracted embedding, using GORM.
// It corresponds to the 'faces' table.
type Face struct {
	ID            uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename      string         `gorm:"uniqueIndex;not null" json:"filename"`
	ImagePath     string         `gorm:"not null;index" json:"image_path"`
	EmbeddingData []byte         `gorm:"column:embedding_data" json:"-"` // 128-dimensional embedding as float32 BLOB, empty if extraction failed
	QualityScore  *float64       `gorm:"column:quality_score" json:"quality_score,omitempty"`
	QualityFlag   string         `gorm:"not null;default:'unknown';index" json:"quality_flag"`
	Year          *int           `json:"year,omitempty"`
	School        *string        `json:"school,omitempty"`
	PageNumber    *int           `json:"page_number,omitempty"`
	State         *string        `json:"state,omitempty"`
	Decade        *int           `json:"decade,omitempty"`
	ClaimedByUserID *uint        `gorm:"index" json:"claimed_by_user_id,omitempty"` // owned by the web layer, read-only here
	CreatedAt     int64          `gorm:"not null" json:"created_at"`        // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt     int64          `gorm:"not null" json:"updated_at"`        // Stored as INTEGER in SQLite, Unix timestamp
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"` // For soft deletes
}

// TableName explicitly sets the table name for GORM.
func (Face) TableName() string {
	return "faces"
}

// HasEmbedding reports whether the record carries a non-empty embedding blob.
func (f *Face) HasEmbedding() bool {
	return len(f.EmbeddingData) > 0
}

// GetEmbedding converts the BLOB data to []float32
func (f *Face) GetEmbedding() []float32 {
	if len(f.EmbeddingData) == 0 {
		return nil
	}

	// Convert []byte to []float32
	embedding := make([]float32, len(f.EmbeddingData)/4) // 4 bytes per float32
	for i := 0; i < len(embedding); i++ {
		offset := i * 4
		bits := uint32(f.EmbeddingData[offset]) |
			uint32(f.EmbeddingData[offset+1])<<8 |
			uint32(f.EmbeddingData[offset+2])<<16 |
			uint32(f.EmbeddingData[offset+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

// SetEmbedding converts []float32 to BLOB data
func (f *Face) SetEmbedding(embedding []float32) {
	if len(embedding) == 0 {
		f.EmbeddingData = nil
		return
	}

	// Convert []float32 to []byte
	f.EmbeddingData = make([]byte, len(embedding)*4) // 4 bytes per float32
	for i, val := range embedding {
		offset := i * 4
		bits := math.Float32bits(val)
		f.EmbeddingData[offset] = byte(bits)
		f.EmbeddingData[offset+1] = byte(bits >> 8)
		f.EmbeddingData[offset+2] = byte(bits >> 16)
		f.EmbeddingData[offset+3] = byte(bits >> 24)
	}
}
