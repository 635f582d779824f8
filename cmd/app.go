package cmd

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/dganger475/dopp-sub002/config"
	"github.com/dganger475/dopp-sub002/database"
	"github.com/dganger475/dopp-sub002/faceindex"
	"github.com/dganger475/dopp-sub002/media"
	"github.com/dganger475/dopp-sub002/models"
	"github.com/dganger475/dopp-sub002/repository"
	"github.com/dganger475/dopp-sub002/services"
)

// app wires the shared collaborators every command needs: the record
// store, the index manager and the reconciler.
type app struct {
	cfg        config.Config
	gormDB     *gorm.DB
	sqlDB      *sql.DB
	repo       *repository.FaceRepository
	index      *faceindex.Manager
	reconciler *services.Reconciler
}

// newApp loads configuration, opens the record store and tries to restore
// the published index snapshot. A missing index is not fatal; queries fail
// with "index unavailable" until the first rebuild.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		return nil, err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	repo := repository.NewFaceRepository(gormDB)
	index := faceindex.NewManager(repo, models.EmbeddingDim, cfg.IndexPath, cfg.MappingPath)
	if err := index.Load(); err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		gormDB: gormDB,
		sqlDB:  sqlDB,
		repo:   repo,
		index:  index,
	}
	a.reconciler = services.NewReconciler(repo, sqlDB, index, a.newEmbedder, cfg.FacesDirectory, cfg.NumFaceWorkers)
	return a, nil
}

// newEmbedder constructs a DNN extractor from the configured model paths.
// The extractor degrades to disabled when models are missing.
func (a *app) newEmbedder() media.Embedder {
	return media.NewDNNExtractor(
		a.cfg.DetectorConfigPath,
		a.cfg.DetectorModelPath,
		a.cfg.RecognitionModelPath,
		a.cfg.RecognitionModelName,
	)
}

// newSearchService builds the query engine with a fresh extractor for
// image-based queries.
func (a *app) newSearchService(embedder media.Embedder) *services.FaceSearchService {
	return services.NewFaceSearchService(a.repo, a.index, embedder, a.cfg.SimilarityThreshold)
}

func (a *app) close() {
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
}
