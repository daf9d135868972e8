package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/talkinghead/internal/jobs"
	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/queue"
)

type JobStore interface {
	Create(ctx context.Context, id string) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Delete(ctx context.Context, id string) error
}

type Enqueuer interface {
	EnqueueVideoGenerate(ctx context.Context, payload queue.VideoGeneratePayload) error
}

type JobHandler struct {
	pipeline     *pipeline.Pipeline
	jobs         JobStore
	queue        Enqueuer
	exposeErrors bool
}

func NewJobHandler(p *pipeline.Pipeline, store JobStore, q Enqueuer, exposeErrors bool) *JobHandler {
	return &JobHandler{pipeline: p, jobs: store, queue: q, exposeErrors: exposeErrors}
}

type jobResponse struct {
	ID        string      `json:"job_id"`
	Status    jobs.Status `json:"status"`
	VideoURL  string      `json:"video_url,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newJobResponse(job *jobs.Job) jobResponse {
	resp := jobResponse{
		ID:        job.ID,
		Status:    job.Status,
		VideoURL:  job.VideoURL,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if resp.Status == jobs.StatusCompleted && resp.VideoURL == "" {
		resp.VideoURL = "/api/v1/jobs/" + job.ID + "/video"
	}
	return resp
}

// Create stages the uploads and queues the generation for a worker.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, closeUploads, err := parseGenerateRequest(r)
	defer closeUploads()
	if err != nil {
		writePipelineError(w, r, err, h.exposeErrors)
		return
	}

	staged, err := h.pipeline.Prepare(req)
	if err != nil {
		writePipelineError(w, r, err, h.exposeErrors)
		return
	}

	log := slog.With("job_id", req.ID, "request_id", chimiddleware.GetReqID(r.Context()))

	job, err := h.jobs.Create(r.Context(), req.ID)
	if err != nil {
		log.Error("failed to create job", "error", err)
		h.discard(staged)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	err = h.queue.EnqueueVideoGenerate(r.Context(), queue.VideoGeneratePayload{
		JobID:     req.ID,
		Text:      staged.Text,
		ImagePath: staged.ImagePath,
		AudioPath: staged.AudioPath,
	})
	if err != nil {
		log.Error("failed to enqueue job", "error", err)
		// The client never got a job id, so the record would be unreachable.
		if derr := h.jobs.Delete(r.Context(), req.ID); derr != nil {
			log.Error("failed to delete unqueued job", "error", derr)
		}
		h.discard(staged)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return
	}

	log.Info("job queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

// Video streams the finished video of a completed job.
func (h *JobHandler) Video(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Status != jobs.StatusCompleted || job.VideoPath == "" {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "job not completed"})
		return
	}
	serveVideo(w, r, job.VideoPath)
}

func (h *JobHandler) lookup(w http.ResponseWriter, r *http.Request) (*jobs.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job ID"})
		return nil, false
	}

	job, err := h.jobs.Get(r.Context(), id.String())
	if errors.Is(err, jobs.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return nil, false
	}
	if err != nil {
		slog.Error("failed to get job", "job_id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "queue unavailable"})
		return nil, false
	}
	return job, true
}

func (h *JobHandler) discard(staged *pipeline.Staged) {
	if err := h.pipeline.Discard(staged); err != nil {
		slog.Warn("failed to remove workspace", "workspace", staged.Workspace.ID, "error", err)
	}
}
