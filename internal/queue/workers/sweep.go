package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

// SweepWorker deletes request workspaces older than the retention period,
// together with any videos published from them.
type SweepWorker struct {
	workspaces *storage.Workspaces
	retention  time.Duration
	storage    storage.Storage
	bucket     string
}

type SweepOption func(*SweepWorker)

// WithUnpublish deletes the published copy of each swept video from bucket.
func WithUnpublish(store storage.Storage, bucket string) SweepOption {
	return func(w *SweepWorker) {
		w.storage = store
		w.bucket = bucket
	}
}

func NewSweepWorker(workspaces *storage.Workspaces, retention time.Duration, opts ...SweepOption) *SweepWorker {
	w := &SweepWorker{workspaces: workspaces, retention: retention}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *SweepWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	expired, err := w.workspaces.Expired(w.retention)

	var removed int
	errs := []error{err}
	for _, ws := range expired {
		if err := w.unpublish(ctx, ws); err != nil {
			// Kept so the next sweep retries the remote delete.
			slog.Warn("failed to delete published video", "workspace", ws.ID, "error", err)
			continue
		}
		if err := w.workspaces.Remove(ws.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		slog.Info("swept expired workspaces", "count", removed, "retention", w.retention)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("sweep workspaces: %w", err)
	}
	return nil
}

func (w *SweepWorker) unpublish(ctx context.Context, ws storage.Workspace) error {
	if w.storage == nil {
		return nil
	}

	entries, err := os.ReadDir(ws.OutputDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == pipeline.SpeechFilename {
			continue
		}
		key := publishedKey(ws.ID, filepath.Join(ws.OutputDir, entry.Name()))
		if err := w.storage.Delete(ctx, w.bucket, key); err != nil {
			return err
		}
	}
	return nil
}

// publishedKey is the object key a job's video is published under.
func publishedKey(jobID, videoPath string) string {
	return jobID + "/" + filepath.Base(videoPath)
}
