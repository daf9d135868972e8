package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/queue"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

// JobStore records the progress of queued generations.
type JobStore interface {
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id, videoPath, videoURL string) error
	Fail(ctx context.Context, id, message string) error
}

type GenerateWorker struct {
	pipeline     *pipeline.Pipeline
	jobs         JobStore
	storage      storage.Storage
	bucket       string
	exposeErrors bool
}

type GenerateOption func(*GenerateWorker)

// WithPublisher uploads finished videos to bucket and records their public URL.
func WithPublisher(store storage.Storage, bucket string) GenerateOption {
	return func(w *GenerateWorker) {
		w.storage = store
		w.bucket = bucket
	}
}

// WithErrorDetails stores raw collaborator messages on failed jobs instead of
// the sanitized ones.
func WithErrorDetails(expose bool) GenerateOption {
	return func(w *GenerateWorker) {
		w.exposeErrors = expose
	}
}

func NewGenerateWorker(p *pipeline.Pipeline, jobs JobStore, opts ...GenerateOption) *GenerateWorker {
	w := &GenerateWorker{pipeline: p, jobs: jobs}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.VideoGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	log := slog.With("job_id", payload.JobID)
	log.Info("processing generation")

	staged, err := w.pipeline.Restore(payload.JobID, payload.Text, payload.ImagePath, payload.AudioPath)
	if err != nil {
		return w.fail(ctx, payload.JobID, err)
	}

	if err := w.jobs.MarkProcessing(ctx, payload.JobID); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	result, err := w.pipeline.Synthesize(ctx, staged)
	if err != nil {
		return w.fail(ctx, payload.JobID, err)
	}

	var videoURL string
	if w.storage != nil {
		videoURL, err = storage.PublishFile(ctx, w.storage, w.bucket, publishedKey(payload.JobID, result.VideoPath), result.VideoPath)
		if err != nil {
			// The local copy is still downloadable through the API.
			log.Warn("failed to publish video", "error", err)
			videoURL = ""
		}
	}

	if err := w.jobs.Complete(ctx, payload.JobID, result.VideoPath, videoURL); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	log.Info("generation completed", "video_path", result.VideoPath, "video_url", videoURL)
	return nil
}

func (w *GenerateWorker) fail(ctx context.Context, jobID string, cause error) error {
	msg := pipeline.PublicMessage(cause)
	if w.exposeErrors {
		msg = pipeline.DetailMessage(cause)
	}

	slog.Error("generation failed", "job_id", jobID, "error", cause)

	if err := w.jobs.Fail(ctx, jobID, msg); err != nil {
		slog.Error("failed to record job failure", "job_id", jobID, "error", err)
	}
	return fmt.Errorf("generate %s: %v: %w", jobID, cause, asynq.SkipRetry)
}
