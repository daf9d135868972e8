package video

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal"
)

// DefaultFilename is where a local command is expected to write its video
// when it does not print a path.
const DefaultFilename = "video.mp4"

type LocalVideoConfig struct {
	// Command is the argv to run. {image}, {audio} and {output_dir} are
	// replaced with the request values.
	Command []string
}

// LocalVideo renders a talking head with a local model command. The command
// reports the produced file as the last line of stdout, or writes
// DefaultFilename into {output_dir}.
type LocalVideo struct {
	cfg LocalVideoConfig
}

func NewLocalVideo(cfg LocalVideoConfig) *LocalVideo {
	return &LocalVideo{cfg: cfg}
}

func (l *LocalVideo) Name() string { return "local" }

func (l *LocalVideo) SynthesizeVideo(ctx context.Context, req VideoRequest) (string, error) {
	stdout, err := multimodal.RunCommand(ctx, l.cfg.Command, map[string]string{
		"image":      req.ImagePath,
		"audio":      req.AudioPath,
		"output_dir": req.OutputDir,
	})
	if err != nil {
		return "", fmt.Errorf("local video: %w", err)
	}

	path := multimodal.LastLine(stdout)
	if path == "" {
		path = filepath.Join(req.OutputDir, DefaultFilename)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("local video produced no file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("local video reported a directory: %s", path)
	}
	return path, nil
}
