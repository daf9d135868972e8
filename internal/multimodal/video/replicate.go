package video

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/nikhilbhutani/talkinghead/internal/replicate"
)

// ReplicateVideo renders a talking head with a hosted model such as
// cjwbw/sadtalker.
type ReplicateVideo struct {
	*replicate.Client
}

func NewReplicateVideo(model string, options ...replicate.Option) (*ReplicateVideo, error) {
	client, err := replicate.New(model, options...)
	if err != nil {
		return nil, err
	}

	return &ReplicateVideo{
		Client: client,
	}, nil
}

func (r *ReplicateVideo) Name() string { return "replicate" }

func (r *ReplicateVideo) SynthesizeVideo(ctx context.Context, req VideoRequest) (string, error) {
	image, err := r.UploadFile(ctx, req.ImagePath)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer r.DeleteFile(context.Background(), image.ID)

	audio, err := r.UploadFile(ctx, req.AudioPath)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	defer r.DeleteFile(context.Background(), audio.ID)

	// https://replicate.com/cjwbw/sadtalker/api/schema#input-schema
	input := replicate.PredictionInput{
		"source_image": replicate.FileURL(image),
		"driven_audio": replicate.FileURL(audio),
	}

	output, err := r.Run(ctx, input)
	if err != nil {
		return "", fmt.Errorf("replicate %s: %w", r.Model(), err)
	}

	path := filepath.Join(req.OutputDir, DefaultFilename)
	if err := replicate.WriteOutput(output, path); err != nil {
		return "", err
	}
	return path, nil
}
