// Package limiter throttles calls into the synthesis collaborators.
package limiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/nikhilbhutani/talkinghead/internal/multimodal/tts"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/video"
)

// New returns a limiter allowing rps calls per second, or nil when rps is
// not positive. Wrappers treat a nil limiter as unlimited.
func New(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

type limitedSpeech struct {
	limiter  *rate.Limiter
	provider tts.Synthesizer
}

func NewSpeechSynthesizer(l *rate.Limiter, p tts.Synthesizer) tts.Synthesizer {
	if l == nil {
		return p
	}
	return &limitedSpeech{
		limiter:  l,
		provider: p,
	}
}

func (p *limitedSpeech) Name() string { return p.provider.Name() }

func (p *limitedSpeech) SynthesizeSpeech(ctx context.Context, req tts.SpeechRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return p.provider.SynthesizeSpeech(ctx, req)
}

type limitedVideo struct {
	limiter  *rate.Limiter
	provider video.Synthesizer
}

func NewVideoSynthesizer(l *rate.Limiter, p video.Synthesizer) video.Synthesizer {
	if l == nil {
		return p
	}
	return &limitedVideo{
		limiter:  l,
		provider: p,
	}
}

func (p *limitedVideo) Name() string { return p.provider.Name() }

func (p *limitedVideo) SynthesizeVideo(ctx context.Context, req video.VideoRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return p.provider.SynthesizeVideo(ctx, req)
}
