package tts

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/talkinghead/internal/replicate"
)

// ReplicateTTS clones the reference voice with a hosted model such as
// lucataco/xtts-v2.
type ReplicateTTS struct {
	*replicate.Client

	language string
}

func NewReplicateTTS(model, language string, options ...replicate.Option) (*ReplicateTTS, error) {
	client, err := replicate.New(model, options...)
	if err != nil {
		return nil, err
	}

	if language == "" {
		language = "en"
	}

	return &ReplicateTTS{
		Client:   client,
		language: language,
	}, nil
}

func (r *ReplicateTTS) Name() string { return "replicate" }

func (r *ReplicateTTS) SynthesizeSpeech(ctx context.Context, req SpeechRequest) (string, error) {
	speaker, err := r.UploadFile(ctx, req.ReferenceAudioPath)
	if err != nil {
		return "", fmt.Errorf("upload reference audio: %w", err)
	}

	defer func() {
		r.DeleteFile(context.Background(), speaker.ID)
	}()

	// https://replicate.com/lucataco/xtts-v2/api/schema#input-schema
	input := replicate.PredictionInput{
		"text":     req.Text,
		"speaker":  replicate.FileURL(speaker),
		"language": r.language,
	}

	output, err := r.Run(ctx, input)
	if err != nil {
		return "", fmt.Errorf("replicate %s: %w", r.Model(), err)
	}

	if err := replicate.WriteOutput(output, req.OutputPath); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}
