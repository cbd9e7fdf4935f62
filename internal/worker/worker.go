package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matt-primrose/blob-download-task/internal/config"
	"github.com/matt-primrose/blob-download-task/internal/download"
	"github.com/matt-primrose/blob-download-task/pkg/models"
)

const queueSize = 16

// Task is the set of operations the worker dispatches jobs to
type Task interface {
	DownloadBlob(ctx context.Context, src models.Source, dst models.Destination) (*models.DownloadResult, error)
	ReadBlobContent(ctx context.Context, src models.Source, encodingName string) (*models.ContentResult, error)
	BlobExists(ctx context.Context, src models.Source) (bool, error)
}

// Worker runs download jobs one at a time. A single loop consumes the queue,
// so Rename downloads into a shared directory never race with each other.
type Worker struct {
	config   *config.Config
	task     Task
	logger   *slog.Logger
	jobQueue chan *models.DownloadJob
	wg       sync.WaitGroup

	mu       sync.Mutex
	statuses map[string]models.JobStatus
}

// New creates a new worker instance
func New(cfg *config.Config, task Task, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		config:   cfg,
		task:     task,
		logger:   logger,
		jobQueue: make(chan *models.DownloadJob, queueSize),
		statuses: make(map[string]models.JobStatus),
	}
}

// Start starts the worker loop. Jobs still queued when ctx ends are marked cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting download worker", "queueSize", cap(w.jobQueue))

	w.wg.Add(1)
	go w.workerLoop(ctx)
}

// Stop closes the queue and waits for queued jobs to finish.
// A worker cannot be restarted after Stop.
func (w *Worker) Stop() {
	close(w.jobQueue)
	w.wg.Wait()
	w.logger.Info("Download worker stopped")
}

// SubmitJob submits a new job to the worker queue without blocking
func (w *Worker) SubmitJob(job *models.DownloadJob) error {
	w.prepare(job)

	select {
	case w.jobQueue <- job:
		w.logger.Info("Job queued", "jobId", job.ID, "mode", job.Mode)
		return nil
	default:
		return fmt.Errorf("job queue is full")
	}
}

// Run processes jobs in order and returns once all of them have finished.
// Each job's outcome is recorded in its Status; a failed job does not stop the rest.
func (w *Worker) Run(ctx context.Context, jobs []*models.DownloadJob) {
	for _, job := range jobs {
		w.prepare(job)
	}

	w.Start(ctx)

submit:
	for _, job := range jobs {
		select {
		case w.jobQueue <- job:
		case <-ctx.Done():
			break submit
		}
	}

	w.Stop()

	// jobs never handed to the loop are cancelled as well
	for _, job := range jobs {
		if job.Status.State == models.JobStatePending {
			w.cancelJob(job, ctx.Err())
		}
	}
}

// GetJobStatus returns the current status of all jobs seen by this worker
func (w *Worker) GetJobStatus() map[string]models.JobStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	statuses := make(map[string]models.JobStatus, len(w.statuses))
	for id, status := range w.statuses {
		statuses[id] = status
	}
	return statuses
}

// workerLoop is the main processing loop
func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for job := range w.jobQueue {
		if err := ctx.Err(); err != nil {
			w.cancelJob(job, err)
			continue
		}
		w.processJob(ctx, job)
	}
}

// prepare fills job defaults from the configuration and marks it pending
func (w *Worker) prepare(job *models.DownloadJob) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Mode == "" {
		job.Mode = models.JobModeDownload
	}
	if job.Source.ConnectionString == "" {
		job.Source.ConnectionString = w.config.Source.ConnectionString
	}
	if job.Source.ContainerName == "" {
		job.Source.ContainerName = w.config.Source.ContainerName
	}
	job.Destination = job.Destination.Resolve(w.config.Destination).AsJob()
	if job.Encoding == "" {
		job.Encoding = w.config.Content.Encoding
	}

	job.Status = models.JobStatus{
		State:   models.JobStatePending,
		Message: "Job queued for processing",
	}
	w.record(job)
}

// processJob processes a single job
func (w *Worker) processJob(ctx context.Context, job *models.DownloadJob) {
	w.logger.Info("Processing job",
		"jobId", job.ID,
		"mode", job.Mode,
		"container", job.Source.ContainerName,
		"blobName", job.Source.BlobName,
	)

	job.Status.State = models.JobStateProcessing
	job.Status.StartedAt = time.Now()
	job.Status.Message = "Processing started"
	w.record(job)

	jobCtx := ctx
	if timeout := w.config.Download.JobTimeoutSeconds; timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	if err := w.execute(jobCtx, job); err != nil {
		job.Status.CompletedAt = time.Now()
		job.Status.Error = err.Error()
		if errors.Is(err, download.ErrCancelled) {
			job.Status.State = models.JobStateCancelled
			job.Status.Message = "Job cancelled"
		} else {
			job.Status.State = models.JobStateFailed
			job.Status.Message = "Job failed"
		}
		w.record(job)
		w.logger.Error("Job failed",
			"jobId", job.ID,
			"state", job.Status.State,
			"error", err,
		)
		return
	}

	job.Status.State = models.JobStateCompleted
	job.Status.CompletedAt = time.Now()
	job.Status.Message = "Job completed successfully"
	w.record(job)

	w.logger.Info("Job completed",
		"jobId", job.ID,
		"duration", formatDuration(job.Status.CompletedAt.Sub(job.Status.StartedAt)),
	)
}

// execute dispatches the job to the task by mode
func (w *Worker) execute(ctx context.Context, job *models.DownloadJob) error {
	switch job.Mode {
	case models.JobModeDownload:
		result, err := w.task.DownloadBlob(ctx, job.Source, job.Destination.Resolve(w.config.Destination))
		if err != nil {
			return err
		}
		job.Status.Download = result

	case models.JobModeRead:
		result, err := w.task.ReadBlobContent(ctx, job.Source, job.Encoding)
		if err != nil {
			return err
		}
		job.Status.Content = result

	case models.JobModeExists:
		exists, err := w.task.BlobExists(ctx, job.Source)
		if err != nil {
			return err
		}
		job.Status.Exists = &exists

	default:
		return fmt.Errorf("%w: unsupported job mode %q", download.ErrInvalidRequest, job.Mode)
	}
	return nil
}

func (w *Worker) cancelJob(job *models.DownloadJob, cause error) {
	if cause == nil {
		cause = context.Canceled
	}
	job.Status.State = models.JobStateCancelled
	job.Status.Message = "Job cancelled before start"
	job.Status.Error = cause.Error()
	job.Status.CompletedAt = time.Now()
	w.record(job)
}

func (w *Worker) record(job *models.DownloadJob) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.statuses[job.ID] = job.Status
}

// formatDuration formats a time.Duration into a human-readable string
// showing hours, minutes, and seconds as appropriate
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d)/float64(time.Millisecond))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}
