// Package app builds the components shared by the API server and the worker
// from configuration.
package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/nikhilbhutani/talkinghead/internal/config"
	"github.com/nikhilbhutani/talkinghead/internal/limiter"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/tts"
	"github.com/nikhilbhutani/talkinghead/internal/multimodal/video"
	"github.com/nikhilbhutani/talkinghead/internal/otel"
	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/replicate"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewPipeline creates the workspace roots and both collaborators. Replicate
// backends share one rate limiter since they draw on the same account.
func NewPipeline(cfg *config.Config) (*pipeline.Pipeline, *storage.Workspaces, error) {
	workspaces, err := storage.NewWorkspaces(cfg.Storage.UploadDir, cfg.Storage.OutputDir)
	if err != nil {
		return nil, nil, err
	}

	replicateLimiter := limiter.New(cfg.Replicate.RateLimitRPS)

	speech, err := NewSpeechSynthesizer(cfg, replicateLimiter)
	if err != nil {
		return nil, nil, err
	}

	vid, err := NewVideoSynthesizer(cfg, replicateLimiter)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(workspaces, speech, vid, pipeline.Options{
		MaxConcurrent: cfg.Pipeline.MaxConcurrent,
		Timeout:       cfg.Pipeline.Timeout,
	})
	return p, workspaces, nil
}

func NewSpeechSynthesizer(cfg *config.Config, l *rate.Limiter) (tts.Synthesizer, error) {
	switch cfg.TTS.Backend {
	case "local":
		s := tts.NewLocalTTS(tts.LocalTTSConfig{Command: cfg.TTS.LocalCommand})
		return otel.NewSpeechSynthesizer(commandName(cfg.TTS.LocalCommand), s), nil
	case "openai":
		s := tts.NewOpenAITTS(tts.OpenAITTSConfig{
			APIKey:  cfg.TTS.OpenAIKey,
			BaseURL: cfg.TTS.OpenAIBaseURL,
			Model:   cfg.TTS.OpenAIModel,
			Voice:   cfg.TTS.OpenAIVoice,
		})
		return otel.NewSpeechSynthesizer(cfg.TTS.OpenAIModel, s), nil
	case "replicate":
		s, err := tts.NewReplicateTTS(cfg.TTS.ReplicateModel, cfg.TTS.ReplicateLang, replicateOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("create replicate speech backend: %w", err)
		}
		return otel.NewSpeechSynthesizer(cfg.TTS.ReplicateModel, limiter.NewSpeechSynthesizer(l, s)), nil
	default:
		return nil, fmt.Errorf("unknown TTS_BACKEND %q", cfg.TTS.Backend)
	}
}

func NewVideoSynthesizer(cfg *config.Config, l *rate.Limiter) (video.Synthesizer, error) {
	switch cfg.Video.Backend {
	case "local":
		v := video.NewLocalVideo(video.LocalVideoConfig{Command: cfg.Video.LocalCommand})
		return otel.NewVideoSynthesizer(commandName(cfg.Video.LocalCommand), v), nil
	case "replicate":
		v, err := video.NewReplicateVideo(cfg.Video.ReplicateModel, replicateOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("create replicate video backend: %w", err)
		}
		return otel.NewVideoSynthesizer(cfg.Video.ReplicateModel, limiter.NewVideoSynthesizer(l, v)), nil
	default:
		return nil, fmt.Errorf("unknown VIDEO_BACKEND %q", cfg.Video.Backend)
	}
}

// NewPublisher returns the Supabase store finished videos are published to,
// or nil when publishing is not configured.
func NewPublisher(cfg config.StorageConfig) storage.Storage {
	if cfg.SupabaseURL == "" {
		return nil
	}
	return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey)
}

func replicateOptions(cfg *config.Config) []replicate.Option {
	opts := []replicate.Option{replicate.WithToken(cfg.Replicate.APIToken)}
	if cfg.Replicate.BaseURL != "" {
		opts = append(opts, replicate.WithURL(cfg.Replicate.BaseURL))
	}
	return opts
}

// commandName labels a local backend in traces by its script, which says
// more than the interpreter that runs it.
func commandName(args []string) string {
	for _, a := range args[min(1, len(args)):] {
		if !strings.HasPrefix(a, "-") && !strings.Contains(a, "{") {
			return filepath.Base(a)
		}
	}
	if len(args) > 0 {
		return filepath.Base(args[0])
	}
	return ""
}
