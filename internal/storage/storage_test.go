package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"portrait.png", "portrait.png"},
		{"../../etc/passwd", "etc_passwd"},
		{`..\..\windows\win.ini`, "windows_win.ini"},
		{"my voice sample.wav", "my_voice_sample.wav"},
		{"résumé.jpg", "resume.jpg"},
		{"/abs/path/photo.jpeg", "abs_path_photo.jpeg"},
		{"...", ""},
		{"名前.wav", "wav"},
		{"a;rm -rf $HOME.png", "arm_-rf_HOME.png"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func newWorkspaces(t *testing.T) *Workspaces {
	t.Helper()

	root := t.TempDir()
	ws, err := NewWorkspaces(filepath.Join(root, "uploads"), filepath.Join(root, "outputs"))
	require.NoError(t, err)
	return ws
}

func TestNewWorkspacesCreatesRoots(t *testing.T) {
	root := t.TempDir()
	_, err := NewWorkspaces(filepath.Join(root, "a", "uploads"), filepath.Join(root, "b", "outputs"))
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, "a", "uploads"))
	assert.DirExists(t, filepath.Join(root, "b", "outputs"))
}

func TestStageTraversalStaysInsideUploads(t *testing.T) {
	workspaces := newWorkspaces(t)

	ws, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)

	path, err := workspaces.Stage(ws, "audio", "../../etc/passwd", strings.NewReader("voice"))
	require.NoError(t, err)

	assert.Equal(t, ws.UploadDir, filepath.Dir(path))
	assert.Equal(t, "audio_etc_passwd", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "voice", string(data))
}

func TestStageEmptyName(t *testing.T) {
	workspaces := newWorkspaces(t)

	ws, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)

	path, err := workspaces.Stage(ws, "image", "", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "image_upload", filepath.Base(path))
}

func TestWorkspacesAreIsolated(t *testing.T) {
	workspaces := newWorkspaces(t)

	a, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)
	b, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)

	pa, err := workspaces.Stage(a, "image", "face.png", strings.NewReader("a"))
	require.NoError(t, err)
	pb, err := workspaces.Stage(b, "image", "face.png", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, pa, pb)

	da, _ := os.ReadFile(pa)
	db, _ := os.ReadFile(pb)
	assert.Equal(t, "a", string(da))
	assert.Equal(t, "b", string(db))
}

func TestOpenRejectsNonUUID(t *testing.T) {
	workspaces := newWorkspaces(t)

	_, err := workspaces.Open("../outputs")
	require.ErrorIs(t, err, ErrInvalidWorkspace)
}

func TestExpiredListsOnlyOldWorkspaces(t *testing.T) {
	workspaces := newWorkspaces(t)

	old, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)
	fresh, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old.UploadDir, past, past))
	require.NoError(t, os.Chtimes(old.OutputDir, past, past))

	// unrelated directories in the roots are never touched
	keep := filepath.Join(filepath.Dir(old.UploadDir), "keep-me")
	require.NoError(t, os.Mkdir(keep, 0o750))
	require.NoError(t, os.Chtimes(keep, past, past))

	expired, err := workspaces.Expired(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []Workspace{old}, expired)

	for _, ws := range expired {
		require.NoError(t, workspaces.Remove(ws.ID))
	}

	assert.NoDirExists(t, old.UploadDir)
	assert.NoDirExists(t, old.OutputDir)
	assert.DirExists(t, fresh.UploadDir)
	assert.DirExists(t, fresh.OutputDir)
	assert.DirExists(t, keep)
}

func TestRemove(t *testing.T) {
	workspaces := newWorkspaces(t)

	ws, err := workspaces.Create(uuid.NewString())
	require.NoError(t, err)

	require.NoError(t, workspaces.Remove(ws.ID))
	assert.NoDirExists(t, ws.UploadDir)
	assert.NoDirExists(t, ws.OutputDir)
}

func TestSupabasePublishFile(t *testing.T) {
	var gotPath, gotAuth, gotType, gotBody string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	local := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(local, []byte("mp4"), 0o600))

	store := NewSupabaseStorage(srv.URL+"/", "service-key")
	url, err := PublishFile(context.Background(), store, "videos", "job/clip.mp4", local)
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/videos/job/clip.mp4", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "video/mp4", gotType)
	assert.Equal(t, "mp4", gotBody)
	assert.Equal(t, srv.URL+"/storage/v1/object/public/videos/job/clip.mp4", url)
}

func TestSupabaseUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewSupabaseStorage(srv.URL, "k")
	err := store.Upload(context.Background(), "missing", "a.mp4", strings.NewReader("x"), "video/mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSupabaseDelete(t *testing.T) {
	var deleted []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/storage/v1/object/videos/job/video.mp4":
			deleted = append(deleted, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		case "/storage/v1/object/videos/gone/video.mp4":
			http.Error(w, "not found", http.StatusNotFound)
		default:
			http.Error(w, "forbidden", http.StatusForbidden)
		}
	}))
	defer srv.Close()

	store := NewSupabaseStorage(srv.URL, "k")
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "videos", "job/video.mp4"))
	require.NoError(t, store.Delete(ctx, "videos", "gone/video.mp4"), "missing objects are already deleted")

	err := store.Delete(ctx, "private", "job/video.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	assert.Equal(t, []string{"/storage/v1/object/videos/job/video.mp4"}, deleted)
}
