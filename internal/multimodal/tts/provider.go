package tts

import "context"

// SpeechRequest holds the inputs of one voice-cloned synthesis.
type SpeechRequest struct {
	Text               string
	ReferenceAudioPath string // voice sample to imitate
	OutputPath         string // where the synthesized audio must be written
}

// Synthesizer turns text plus a reference voice into an audio file and
// returns the path it wrote.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (string, error)
	Name() string
}
