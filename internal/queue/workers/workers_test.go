package workers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal/tts"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/video"
	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/queue"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

type jobRecord struct {
	status    string
	videoPath string
	videoURL  string
	message   string
}

type memoryJobs struct {
	mu   sync.Mutex
	jobs map[string]*jobRecord
}

func newMemoryJobs(ids ...string) *memoryJobs {
	m := &memoryJobs{jobs: make(map[string]*jobRecord)}
	for _, id := range ids {
		m.jobs[id] = &jobRecord{status: "queued"}
	}
	return m
}

func (m *memoryJobs) get(id string) jobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *memoryJobs) MarkProcessing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].status = "processing"
	return nil
}

func (m *memoryJobs) Complete(_ context.Context, id, videoPath, videoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].status = "completed"
	m.jobs[id].videoPath = videoPath
	m.jobs[id].videoURL = videoURL
	return nil
}

func (m *memoryJobs) Fail(_ context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].status = "failed"
	m.jobs[id].message = message
	return nil
}

type fileSpeech struct{ err error }

func (s fileSpeech) Name() string { return "file" }

func (s fileSpeech) SynthesizeSpeech(_ context.Context, req tts.SpeechRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return req.OutputPath, os.WriteFile(req.OutputPath, []byte(req.Text), 0o600)
}

type fileVideo struct{}

func (fileVideo) Name() string { return "file" }

func (fileVideo) SynthesizeVideo(_ context.Context, req video.VideoRequest) (string, error) {
	path := filepath.Join(req.OutputDir, video.DefaultFilename)
	return path, os.WriteFile(path, []byte("mp4"), 0o600)
}

func stage(t *testing.T, speech tts.Synthesizer) (*pipeline.Pipeline, *pipeline.Staged) {
	t.Helper()

	root := t.TempDir()
	ws, err := storage.NewWorkspaces(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)

	p := pipeline.New(ws, speech, fileVideo{}, pipeline.Options{})

	req, err := pipeline.NewGenerateRequest("hello",
		&pipeline.Upload{Filename: "face.png", Content: strings.NewReader("png")},
		&pipeline.Upload{Filename: "voice.wav", Content: strings.NewReader("wav")},
	)
	require.NoError(t, err)

	staged, err := p.Prepare(req)
	require.NoError(t, err)
	return p, staged
}

func task(t *testing.T, staged *pipeline.Staged) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(queue.VideoGeneratePayload{
		JobID:     staged.Workspace.ID,
		Text:      staged.Text,
		ImagePath: staged.ImagePath,
		AudioPath: staged.AudioPath,
	})
	require.NoError(t, err)
	return asynq.NewTask(queue.TypeVideoGenerate, data)
}

func TestGenerateWorkerCompletes(t *testing.T) {
	p, staged := stage(t, fileSpeech{})
	jobs := newMemoryJobs(staged.Workspace.ID)

	err := NewGenerateWorker(p, jobs).ProcessTask(context.Background(), task(t, staged))
	require.NoError(t, err)

	rec := jobs.get(staged.Workspace.ID)
	assert.Equal(t, "completed", rec.status)
	assert.Equal(t, filepath.Join(staged.Workspace.OutputDir, video.DefaultFilename), rec.videoPath)
	assert.Empty(t, rec.videoURL)
}

func TestGenerateWorkerPublishes(t *testing.T) {
	var uploaded string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		uploaded = r.URL.Path + "=" + string(body)
	}))
	defer srv.Close()

	p, staged := stage(t, fileSpeech{})
	jobs := newMemoryJobs(staged.Workspace.ID)
	worker := NewGenerateWorker(p, jobs, WithPublisher(storage.NewSupabaseStorage(srv.URL, "k"), "videos"))

	require.NoError(t, worker.ProcessTask(context.Background(), task(t, staged)))

	key := staged.Workspace.ID + "/" + video.DefaultFilename
	assert.Equal(t, "/storage/v1/object/videos/"+key+"=mp4", uploaded)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/videos/"+key, jobs.get(staged.Workspace.ID).videoURL)
}

func TestGenerateWorkerFailureIsNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		expose  bool
		message string
	}{
		{"sanitized", false, "speech synthesis failed"},
		{"exposed", true, "voice clone failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, staged := stage(t, fileSpeech{err: errors.New("voice clone failed")})
			jobs := newMemoryJobs(staged.Workspace.ID)

			err := NewGenerateWorker(p, jobs, WithErrorDetails(tt.expose)).ProcessTask(context.Background(), task(t, staged))
			require.ErrorIs(t, err, asynq.SkipRetry)

			rec := jobs.get(staged.Workspace.ID)
			assert.Equal(t, "failed", rec.status)
			assert.Equal(t, tt.message, rec.message)
		})
	}
}

func TestGenerateWorkerRejectsForeignPaths(t *testing.T) {
	p, staged := stage(t, fileSpeech{})
	jobs := newMemoryJobs(staged.Workspace.ID)

	staged.ImagePath = "/etc/passwd"
	err := NewGenerateWorker(p, jobs).ProcessTask(context.Background(), task(t, staged))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, "failed", jobs.get(staged.Workspace.ID).status)
}

func TestGenerateWorkerBadPayload(t *testing.T) {
	err := NewGenerateWorker(nil, newMemoryJobs()).ProcessTask(context.Background(), asynq.NewTask(queue.TypeVideoGenerate, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSweepWorker(t *testing.T) {
	root := t.TempDir()
	ws, err := storage.NewWorkspaces(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)

	old, err := ws.Create(uuid.NewString())
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.UploadDir, past, past))
	require.NoError(t, os.Chtimes(old.OutputDir, past, past))

	fresh, err := ws.Create(uuid.NewString())
	require.NoError(t, err)

	err = NewSweepWorker(ws, time.Hour).ProcessTask(context.Background(), asynq.NewTask(queue.TypeWorkspaceSweep, nil))
	require.NoError(t, err)

	assert.NoDirExists(t, old.OutputDir)
	assert.DirExists(t, fresh.OutputDir)
}

func TestSweepWorkerDeletesPublishedVideos(t *testing.T) {
	var mu sync.Mutex
	var deleted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		mu.Lock()
		deleted = append(deleted, r.URL.Path)
		mu.Unlock()
	}))
	defer srv.Close()

	root := t.TempDir()
	ws, err := storage.NewWorkspaces(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)

	old, err := ws.Create(uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(old.OutputDir, pipeline.SpeechFilename), []byte("wav"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(old.OutputDir, video.DefaultFilename), []byte("mp4"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.UploadDir, past, past))
	require.NoError(t, os.Chtimes(old.OutputDir, past, past))

	fresh, err := ws.Create(uuid.NewString())
	require.NoError(t, err)

	worker := NewSweepWorker(ws, time.Hour, WithUnpublish(storage.NewSupabaseStorage(srv.URL, "k"), "videos"))
	require.NoError(t, worker.ProcessTask(context.Background(), asynq.NewTask(queue.TypeWorkspaceSweep, nil)))

	assert.Equal(t, []string{"/storage/v1/object/videos/" + old.ID + "/" + video.DefaultFilename}, deleted)
	assert.NoDirExists(t, old.OutputDir)
	assert.DirExists(t, fresh.OutputDir)
}

func TestSweepWorkerKeepsWorkspaceWhenUnpublishFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage down", http.StatusBadGateway)
	}))
	defer srv.Close()

	root := t.TempDir()
	ws, err := storage.NewWorkspaces(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)

	old, err := ws.Create(uuid.NewString())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(old.OutputDir, video.DefaultFilename), []byte("mp4"), 0o600))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old.UploadDir, past, past))
	require.NoError(t, os.Chtimes(old.OutputDir, past, past))

	worker := NewSweepWorker(ws, time.Hour, WithUnpublish(storage.NewSupabaseStorage(srv.URL, "k"), "videos"))
	require.NoError(t, worker.ProcessTask(context.Background(), asynq.NewTask(queue.TypeWorkspaceSweep, nil)))

	assert.FileExists(t, filepath.Join(old.OutputDir, video.DefaultFilename), "retried on the next sweep")
}
