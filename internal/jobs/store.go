// Package jobs tracks asynchronous generations so clients can poll them.
// Records expire after a TTL; this is not a history.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nikhilbhutani/talkinghead/internal/cache"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var ErrNotFound = errors.New("job not found")

type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	VideoPath string    `json:"video_path,omitempty"`
	VideoURL  string    `json:"video_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewStore(c *cache.Cache, ttl time.Duration) *Store {
	return &Store{cache: c, ttl: ttl}
}

func (s *Store) Create(ctx context.Context, id string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{ID: id, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}

	if err := s.cache.Set(ctx, id, job, s.ttl); err != nil {
		return nil, fmt.Errorf("create job %s: %w", id, err)
	}
	return job, nil
}

func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.cache.Get(ctx, id, &job); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *Store) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusProcessing
	})
}

func (s *Store) Complete(ctx context.Context, id, videoPath, videoURL string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusCompleted
		j.VideoPath = videoPath
		j.VideoURL = videoURL
		j.Error = ""
	})
}

func (s *Store) Fail(ctx context.Context, id, message string) error {
	return s.update(ctx, id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = message
	})
}

// Delete drops the record of a job that was never accepted.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// update is a read-modify-write; a job is only ever written by the one
// worker processing it, so no locking is needed.
func (s *Store) update(ctx context.Context, id string, mutate func(*Job)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	mutate(job)
	job.UpdatedAt = time.Now().UTC()

	ok, err := s.cache.SetXX(ctx, id, job)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
