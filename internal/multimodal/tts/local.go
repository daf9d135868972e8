package tts

import (
	"context"
	"fmt"
	"os"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal"
)

// LocalTTSConfig holds configuration for a locally installed voice-cloning
// model driven through a command line.
type LocalTTSConfig struct {
	// Command is the argv to run. {text}, {reference} and {output} are
	// replaced with the request values.
	Command []string
}

// LocalTTS synthesizes speech by running a local model command as a
// subprocess. The command must write the audio to {output}.
type LocalTTS struct {
	cfg LocalTTSConfig
}

func NewLocalTTS(cfg LocalTTSConfig) *LocalTTS {
	return &LocalTTS{cfg: cfg}
}

func (l *LocalTTS) Name() string { return "local" }

func (l *LocalTTS) SynthesizeSpeech(ctx context.Context, req SpeechRequest) (string, error) {
	_, err := multimodal.RunCommand(ctx, l.cfg.Command, map[string]string{
		"text":      req.Text,
		"reference": req.ReferenceAudioPath,
		"output":    req.OutputPath,
	})
	if err != nil {
		return "", fmt.Errorf("local tts: %w", err)
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return "", fmt.Errorf("local tts produced no audio: %w", err)
	}
	return req.OutputPath, nil
}
