package video

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/talkinghead/internal/replicate"
	"github.com/nikhilbhutani/talkinghead/internal/replicate/replicatetest"
)

func TestReplicateVideo(t *testing.T) {
	srv := replicatetest.NewServer(t)
	srv.Pending = 1
	srv.Output = []byte("talking head")

	r, err := NewReplicateVideo("cjwbw/sadtalker", replicate.WithToken("r8_test"), replicate.WithURL(srv.URL))
	require.NoError(t, err)

	req := fixture(t)
	path, err := r.SynthesizeVideo(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(req.OutputDir, DefaultFilename), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "talking head", string(data))

	assert.Equal(t, []byte("png"), srv.File("file-1"))
	assert.Equal(t, []byte("wav"), srv.File("file-2"))

	require.Len(t, srv.Inputs(), 1)
	assert.Equal(t, map[string]any{
		"source_image": srv.FileURL("file-1"),
		"driven_audio": srv.FileURL("file-2"),
	}, srv.Inputs()[0])

	assert.ElementsMatch(t, []string{"file-1", "file-2"}, srv.Deleted())
}

func TestReplicateVideoModelError(t *testing.T) {
	srv := replicatetest.NewServer(t)
	srv.Error = "no face detected"

	r, err := NewReplicateVideo("cjwbw/sadtalker", replicate.WithToken("r8_test"), replicate.WithURL(srv.URL))
	require.NoError(t, err)

	req := fixture(t)
	_, err = r.SynthesizeVideo(context.Background(), req)
	require.EqualError(t, err, "replicate cjwbw/sadtalker: model error: no face detected")

	assert.NoFileExists(t, filepath.Join(req.OutputDir, DefaultFilename))
	assert.ElementsMatch(t, []string{"file-1", "file-2"}, srv.Deleted(), "uploads are removed on failure too")
}
