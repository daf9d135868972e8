package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal/tts"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/video"
)

type observableSpeech struct {
	model    string
	provider tts.Synthesizer
}

func NewSpeechSynthesizer(model string, p tts.Synthesizer) tts.Synthesizer {
	return &observableSpeech{
		model:    model,
		provider: p,
	}
}

func (p *observableSpeech) Name() string { return p.provider.Name() }

func (p *observableSpeech) SynthesizeSpeech(ctx context.Context, req tts.SpeechRequest) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "synthesize_speech "+p.provider.Name())
	defer span.End()

	span.SetAttributes(
		attribute.String("synthesis.backend", p.provider.Name()),
		attribute.String("synthesis.model", p.model),
		attribute.Int("synthesis.text_length", len(req.Text)),
	)

	path, err := p.provider.SynthesizeSpeech(ctx, req)
	record(span, err)

	return path, err
}

type observableVideo struct {
	model    string
	provider video.Synthesizer
}

func NewVideoSynthesizer(model string, p video.Synthesizer) video.Synthesizer {
	return &observableVideo{
		model:    model,
		provider: p,
	}
}

func (p *observableVideo) Name() string { return p.provider.Name() }

func (p *observableVideo) SynthesizeVideo(ctx context.Context, req video.VideoRequest) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "synthesize_video "+p.provider.Name())
	defer span.End()

	span.SetAttributes(
		attribute.String("synthesis.backend", p.provider.Name()),
		attribute.String("synthesis.model", p.model),
	)

	path, err := p.provider.SynthesizeVideo(ctx, req)
	record(span, err)

	return path, err
}

func record(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
