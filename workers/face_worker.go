package workers

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/dganger475/dopp-sub002/media"
	"github.com/dganger475/dopp-sub002/repository"
)

// TaskType constants
const (
	TaskEmbed   = "embed"
	TaskQuality = "quality"
)

type FaceJob struct {
	FaceID    uint
	Filename  string
	ImagePath string
	TaskType  string
}

// FaceProcessor runs batch embedding extraction and quality assessment over
// face assets. Workers share no mutable state beyond the record store; each
// result is written independently keyed by record id.
type FaceProcessor struct {
	JobQueue    chan FaceJob
	Repo        repository.FaceRepositoryInterface
	NewEmbedder func() media.Embedder // per-worker; DNN nets are not goroutine-safe
	OnDone      func(FaceJob)         // optional, called after each processed job
	Wg          sync.WaitGroup
	StopChan    chan struct{}
	Pending     map[string]bool
	Mutex       sync.Mutex
}

func NewFaceProcessor(repo repository.FaceRepositoryInterface, newEmbedder func() media.Embedder, queueSize, numWorkers int) *FaceProcessor {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	proc := &FaceProcessor{
		JobQueue:    make(chan FaceJob, queueSize),
		Repo:        repo,
		NewEmbedder: newEmbedder,
		StopChan:    make(chan struct{}),
		Pending:     make(map[string]bool),
	}
	proc.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go proc.worker(i)
	}
	log.Printf("Started %d face processing worker(s) with queue size %d", numWorkers, queueSize)
	return proc
}

// worker loads its own embedder and processes jobs from the queue
func (fp *FaceProcessor) worker(id int) {
	defer fp.Wg.Done()

	var embedder media.Embedder
	if fp.NewEmbedder != nil {
		embedder = fp.NewEmbedder()
	}
	defer func() {
		if embedder != nil {
			embedder.Close()
		}
	}()

	log.Printf("Face worker %d started", id)
	for {
		select {
		case job, ok := <-fp.JobQueue:
			if !ok {
				log.Printf("Face worker %d stopping: Job queue closed", id)
				return
			}

			pendingKey := fmt.Sprintf("%d:%s", job.FaceID, job.TaskType)

			switch job.TaskType {
			case TaskEmbed:
				fp.processEmbedTask(id, job, embedder)
			case TaskQuality:
				fp.processQualityTask(id, job)
			default:
				log.Printf("Worker %d: ERROR unknown task type '%s' for face %d", id, job.TaskType, job.FaceID)
			}

			fp.Mutex.Lock()
			delete(fp.Pending, pendingKey)
			fp.Mutex.Unlock()

			if fp.OnDone != nil {
				fp.OnDone(job)
			}

		case <-fp.StopChan:
			log.Printf("Face worker %d stopping: Stop signal received", id)
			return
		}
	}
}

// processEmbedTask extracts an embedding for a face asset and stores it.
// Per-item failures are logged and isolated; the record simply stays in
// the no-embedding state.
func (fp *FaceProcessor) processEmbedTask(id int, job FaceJob, embedder media.Embedder) {
	if embedder == nil {
		log.Printf("Worker %d: skipping embed task for %s: no embedder available", id, job.Filename)
		return
	}
	if _, statErr := os.Stat(job.ImagePath); os.IsNotExist(statErr) {
		log.Printf("Worker %d: skipping embed task for %s: asset missing", id, job.Filename)
		return
	}

	vec, err := embedder.ExtractEmbedding(job.ImagePath)
	if err != nil {
		log.Printf("Worker %d: ERROR extracting embedding for %s: %v", id, job.Filename, err)
		return
	}
	if vec == nil {
		log.Printf("Worker %d: no face detected in %s", id, job.Filename)
		return
	}

	if err := fp.Repo.UpsertEmbedding(job.FaceID, vec); err != nil {
		log.Printf("Worker %d: ERROR storing embedding for %s: %v", id, job.Filename, err)
		return
	}
	log.Printf("Worker %d: stored embedding for %s", id, job.Filename)
}

// processQualityTask assesses an asset and overwrites the record's quality
// score and flag.
func (fp *FaceProcessor) processQualityTask(id int, job FaceJob) {
	assessment, err := media.AssessImageFile(job.ImagePath)
	if err != nil {
		log.Printf("Worker %d: ERROR assessing quality for %s: %v", id, job.Filename, err)
		return
	}

	if err := fp.Repo.UpdateQuality(job.FaceID, assessment.Score, assessment.Flag); err != nil {
		log.Printf("Worker %d: ERROR storing quality for %s: %v", id, job.Filename, err)
		return
	}
	log.Printf("Worker %d: assessed %s: flag=%s score=%.2f", id, job.Filename, assessment.Flag, assessment.Score)
}

// QueueJob queues a specific task if not already pending
func (fp *FaceProcessor) QueueJob(job FaceJob) bool {
	// use composite key: "faceID:taskType"
	pendingKey := fmt.Sprintf("%d:%s", job.FaceID, job.TaskType)

	fp.Mutex.Lock()
	if fp.Pending[pendingKey] {
		fp.Mutex.Unlock()
		return false
	}

	fp.Pending[pendingKey] = true
	fp.Mutex.Unlock()

	select {
	case fp.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: Face processing job queue full. Failed to queue task '%s' for face %d", job.TaskType, job.FaceID)
		fp.Mutex.Lock()
		delete(fp.Pending, pendingKey)
		fp.Mutex.Unlock()
		return false
	}
}

// Drain closes the queue and waits for every queued job to finish. Used by
// batch callers that enqueue a fixed set of jobs and need completion.
func (fp *FaceProcessor) Drain() {
	close(fp.JobQueue)
	fp.Wg.Wait()
}

func (fp *FaceProcessor) Stop() {
	log.Println("Stopping face processor workers...")
	close(fp.StopChan)
	fp.Wg.Wait()
	log.Println("All face processor workers stopped")
}
