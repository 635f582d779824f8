package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dganger475/dopp-sub002/models"
)

func newScanTestDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	db, err := InitGormDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, AutoMigrateModels(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	return db, sqlDB
}

func scanSeed(t *testing.T, db *gorm.DB, filename, flag string, embedding []float32) *models.Face {
	t.Helper()
	face := &models.Face{
		Filename:    filename,
		ImagePath:   "faces/" + filename,
		QualityFlag: flag,
	}
	face.SetEmbedding(embedding)
	require.NoError(t, db.Create(face).Error)
	return face
}

func TestListFilePairs(t *testing.T) {
	db, sqlDB := newScanTestDB(t)
	a := scanSeed(t, db, "a.jpg", models.QualityGood, nil)
	b := scanSeed(t, db, "b.jpg", models.QualityGood, nil)
	deleted := scanSeed(t, db, "c.jpg", models.QualityGood, nil)
	require.NoError(t, db.Delete(deleted).Error)

	pairs, err := ListFilePairs(sqlDB)
	require.NoError(t, err)
	require.Len(t, pairs, 2, "soft-deleted records are excluded from scans")
	assert.Equal(t, int64(a.ID), pairs[0].ID)
	assert.Equal(t, "faces/a.jpg", pairs[0].ImagePath)
	assert.Equal(t, int64(b.ID), pairs[1].ID)
}

func TestListKnownFilenames(t *testing.T) {
	db, sqlDB := newScanTestDB(t)
	scanSeed(t, db, "a.jpg", models.QualityGood, nil)
	scanSeed(t, db, "b.jpg", models.QualityGood, nil)

	known, err := ListKnownFilenames(sqlDB)
	require.NoError(t, err)
	assert.Len(t, known, 2)
	_, ok := known["a.jpg"]
	assert.True(t, ok)
	_, ok = known["z.jpg"]
	assert.False(t, ok)
}

func TestCountMissingEmbeddings(t *testing.T) {
	db, sqlDB := newScanTestDB(t)
	vec := make([]float32, models.EmbeddingDim)
	scanSeed(t, db, "has.jpg", models.QualityGood, vec)
	scanSeed(t, db, "nil.jpg", models.QualityGood, nil)

	count, err := CountMissingEmbeddings(sqlDB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestCountByQualityFlag(t *testing.T) {
	db, sqlDB := newScanTestDB(t)
	scanSeed(t, db, "a.jpg", models.QualityGood, nil)
	scanSeed(t, db, "b.jpg", models.QualityGood, nil)
	scanSeed(t, db, "c.jpg", models.QualityBlurry, nil)
	scanSeed(t, db, "d.jpg", models.QualityUnknown, nil)

	counts, err := CountByQualityFlag(sqlDB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.QualityGood])
	assert.Equal(t, int64(1), counts[models.QualityBlurry])
	assert.Equal(t, int64(1), counts[models.QualityUnknown])
}
