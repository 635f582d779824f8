package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/facette/natsort"

	"github.com/dganger475/dopp-sub002/database"
	"github.com/dganger475/dopp-sub002/faceindex"
	"github.com/dganger475/dopp-sub002/media"
	"github.com/dganger475/dopp-sub002/models"
	"github.com/dganger475/dopp-sub002/repository"
	"github.com/dganger475/dopp-sub002/utils"
	"github.com/dganger475/dopp-sub002/workers"
)

// Reconciler detects and repairs divergence between the record store, the
// asset filesystem and the embedding index. Detection methods only report;
// repairs are separate, explicit operator actions. Any repair that touched
// embeddings or quality flags triggers an index rebuild before returning,
// so a repaired store is never served from a stale index.
type Reconciler struct {
	repo        repository.FaceRepositoryInterface
	scanDB      database.Querier
	index       *faceindex.Manager
	newEmbedder func() media.Embedder
	facesDir    string
	numWorkers  int
}

// NewReconciler creates a reconciler. scanDB is the raw connection used for
// the bulk filename scans. newEmbedder is invoked per batch worker (DNN
// nets are not goroutine-safe); it may be nil, in which case embedding
// repairs are unavailable.
func NewReconciler(
	repo repository.FaceRepositoryInterface,
	scanDB database.Querier,
	index *faceindex.Manager,
	newEmbedder func() media.Embedder,
	facesDir string,
	numWorkers int,
) *Reconciler {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &Reconciler{
		repo:        repo,
		scanDB:      scanDB,
		index:       index,
		newEmbedder: newEmbedder,
		facesDir:    facesDir,
		numWorkers:  numWorkers,
	}
}

// StoreStats summarizes the record store for operator reports. Records
// still flagged 'unknown' have never been assessed and are excluded from
// quality-based consistency conclusions.
type StoreStats struct {
	MissingEmbeddings int64            `json:"missing_embeddings"`
	ByQualityFlag     map[string]int64 `json:"by_quality_flag"`
	Unassessed        int64            `json:"unassessed"`
}

// Stats reports store-level counts via the raw scan connection.
func (r *Reconciler) Stats() (*StoreStats, error) {
	missing, err := database.CountMissingEmbeddings(r.scanDB)
	if err != nil {
		return nil, err
	}
	byFlag, err := database.CountByQualityFlag(r.scanDB)
	if err != nil {
		return nil, err
	}
	return &StoreStats{
		MissingEmbeddings: missing,
		ByQualityFlag:     byFlag,
		Unassessed:        byFlag[models.QualityUnknown],
	}, nil
}

// FindOrphanedRecords reports face records whose image path does not
// resolve to an existing file. Reported as data, never as an error.
func (r *Reconciler) FindOrphanedRecords() ([]database.FilePair, error) {
	pairs, err := database.ListFilePairs(r.scanDB)
	if err != nil {
		return nil, err
	}

	var orphans []database.FilePair
	for _, p := range pairs {
		if _, err := os.Stat(p.ImagePath); os.IsNotExist(err) {
			orphans = append(orphans, p)
		}
	}
	return orphans, nil
}

// DeleteOrphans removes every orphaned record and rebuilds the index.
// Per-record delete failures are logged and counted, never abort the batch.
func (r *Reconciler) DeleteOrphans(ctx context.Context, progress func()) (int, error) {
	orphans, err := r.FindOrphanedRecords()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, o := range orphans {
		if err := r.repo.Delete(uint(o.ID)); err != nil {
			log.Printf("reconciler: failed to delete orphan %s (id %d): %v", o.Filename, o.ID, err)
		} else {
			deleted++
		}
		if progress != nil {
			progress()
		}
	}

	if deleted > 0 {
		if err := r.triggerRebuild(ctx); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// FindMissingEmbeddings reports records with an absent or empty embedding;
// these are the re-extraction candidates.
func (r *Reconciler) FindMissingEmbeddings() ([]models.Face, error) {
	return r.repo.ListMissingEmbeddings()
}

// ReextractResult summarizes one re-extraction batch.
type ReextractResult struct {
	Extracted    int
	StillMissing int
}

// ReextractMissing runs the embedding extractor over every record with a
// missing embedding, fanned out across the worker pool. Records whose
// asset yields no detectable face (or fails per-item) stay in the
// no-embedding state. The index is rebuilt when any embedding changed.
func (r *Reconciler) ReextractMissing(ctx context.Context, progress func()) (*ReextractResult, error) {
	if r.newEmbedder == nil {
		return nil, fmt.Errorf("no embedding extractor configured")
	}

	missing, err := r.repo.ListMissingEmbeddings()
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 {
		return &ReextractResult{}, nil
	}

	proc := workers.NewFaceProcessor(r.repo, r.newEmbedder, len(missing), r.numWorkers)
	if progress != nil {
		proc.OnDone = func(workers.FaceJob) { progress() }
	}
	for i := range missing {
		if err := ctx.Err(); err != nil {
			proc.Drain()
			return nil, fmt.Errorf("re-extraction cancelled: %w", err)
		}
		proc.QueueJob(workers.FaceJob{
			FaceID:    missing[i].ID,
			Filename:  missing[i].Filename,
			ImagePath: missing[i].ImagePath,
			TaskType:  workers.TaskEmbed,
		})
	}
	proc.Drain()

	stillMissing, err := r.repo.ListMissingEmbeddings()
	if err != nil {
		return nil, err
	}
	result := &ReextractResult{
		Extracted:    len(missing) - len(stillMissing),
		StillMissing: len(stillMissing),
	}

	if result.Extracted > 0 {
		if err := r.triggerRebuild(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// FindUnindexedAssets reports image files present under the faces directory
// but absent from the record store by filename; candidates for ingestion.
// The list is naturally sorted for stable operator reports.
func (r *Reconciler) FindUnindexedAssets() ([]string, error) {
	known, err := database.ListKnownFilenames(r.scanDB)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(r.facesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read faces directory %s: %w", r.facesDir, err)
	}

	var unindexed []string
	for _, entry := range dirEntries {
		if entry.IsDir() || !media.IsRasterImage(entry.Name()) {
			continue
		}
		if _, ok := known[entry.Name()]; !ok {
			unindexed = append(unindexed, entry.Name())
		}
	}
	natsort.Sort(unindexed)
	return unindexed, nil
}

// IngestResult summarizes one ingestion batch.
type IngestResult struct {
	Inserted    int
	NoFace      int
	Failed      int
	WithNewVecs int
}

// IngestUnindexedAssets creates records for assets found on disk: the
// embedding is extracted, the asset is quality-assessed, and an EXIF date
// seeds the year metadata when present. Assets without a detectable face
// are still recorded (embedding-absent) so they show up in later repair
// passes. The index is rebuilt when any embedding was added.
func (r *Reconciler) IngestUnindexedAssets(ctx context.Context, progress func()) (*IngestResult, error) {
	unindexed, err := r.FindUnindexedAssets()
	if err != nil {
		return nil, err
	}

	var embedder media.Embedder
	if r.newEmbedder != nil {
		embedder = r.newEmbedder()
		if embedder != nil {
			defer embedder.Close()
		}
	}

	result := &IngestResult{}
	for _, filename := range unindexed {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ingestion cancelled: %w", err)
		}

		imagePath := filepath.Join(r.facesDir, filename)
		face := &models.Face{
			Filename:    filename,
			ImagePath:   filepath.ToSlash(imagePath),
			QualityFlag: models.QualityUnknown,
		}

		if embedder != nil {
			vec, err := embedder.ExtractEmbedding(imagePath)
			if err != nil {
				log.Printf("reconciler: failed to extract embedding for new asset %s: %v", filename, err)
			} else if vec == nil {
				result.NoFace++
			} else {
				face.SetEmbedding(vec)
				result.WithNewVecs++
			}
		}

		if assessment, err := media.AssessImageFile(imagePath); err != nil {
			log.Printf("reconciler: failed to assess new asset %s: %v", filename, err)
		} else {
			face.QualityScore = &assessment.Score
			face.QualityFlag = assessment.Flag
		}

		if year := utils.ExtractYear(imagePath); year != nil {
			decade := utils.DecadeOf(*year)
			face.Year = year
			face.Decade = &decade
		}

		if err := r.repo.Create(face); err != nil {
			log.Printf("reconciler: failed to insert record for %s: %v", filename, err)
			result.Failed++
		} else {
			result.Inserted++
		}

		if progress != nil {
			progress()
		}
	}

	if result.WithNewVecs > 0 {
		if err := r.triggerRebuild(ctx); err != nil {
			return result, err
		}
	}
	return result, nil
}

// ReassessResult summarizes one quality assessment batch.
type ReassessResult struct {
	Assessed int
}

// ReassessAll re-runs the quality assessor over every record, overwriting
// prior scores and flags, fanned out across the worker pool. With
// onlyUnassessed, only records still flagged 'unknown' are assessed. The
// index is rebuilt afterwards since flags gate index membership.
func (r *Reconciler) ReassessAll(ctx context.Context, onlyUnassessed bool, progress func()) (*ReassessResult, error) {
	faces, err := r.repo.ListAll()
	if err != nil {
		return nil, err
	}

	var jobs []workers.FaceJob
	for i := range faces {
		if onlyUnassessed && faces[i].QualityFlag != models.QualityUnknown {
			continue
		}
		jobs = append(jobs, workers.FaceJob{
			FaceID:    faces[i].ID,
			Filename:  faces[i].Filename,
			ImagePath: faces[i].ImagePath,
			TaskType:  workers.TaskQuality,
		})
	}
	if len(jobs) == 0 {
		return &ReassessResult{}, nil
	}

	proc := workers.NewFaceProcessor(r.repo, nil, len(jobs), r.numWorkers)
	if progress != nil {
		proc.OnDone = func(workers.FaceJob) { progress() }
	}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			proc.Drain()
			return nil, fmt.Errorf("assessment cancelled: %w", err)
		}
		proc.QueueJob(job)
	}
	proc.Drain()

	result := &ReassessResult{Assessed: len(jobs)}
	if err := r.triggerRebuild(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// triggerRebuild runs the index builder after a repair. Failure is
// surfaced to the operator; the previously published index stays active.
func (r *Reconciler) triggerRebuild(ctx context.Context) error {
	if r.index == nil {
		return nil
	}
	if _, err := r.index.Rebuild(ctx); err != nil {
		return fmt.Errorf("post-repair index rebuild failed: %w", err)
	}
	return nil
}
