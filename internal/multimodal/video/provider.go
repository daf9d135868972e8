package video

import "context"

// VideoRequest holds the inputs of one talking-head render.
type VideoRequest struct {
	ImagePath string
	AudioPath string
	OutputDir string // request-scoped directory the backend may write into
}

// Synthesizer animates a still image with an audio track and returns the
// path of the generated video.
type Synthesizer interface {
	SynthesizeVideo(ctx context.Context, req VideoRequest) (string, error)
	Name() string
}
