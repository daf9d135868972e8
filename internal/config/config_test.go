package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("TTS_BACKEND", "")
	t.Setenv("VIDEO_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "local", cfg.TTS.Backend)
	assert.Equal(t, "local", cfg.Video.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Storage.Retention)
	assert.Equal(t, 2, cfg.Pipeline.MaxConcurrent)
	assert.Contains(t, cfg.TTS.LocalCommand, "{reference}")
	assert.Contains(t, cfg.Video.LocalCommand, "{output_dir}")
	assert.False(t, cfg.Server.ExposeErrorDetails)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8088")
	t.Setenv("RETENTION", "90m")
	t.Setenv("EXPOSE_ERROR_DETAILS", "true")
	t.Setenv("VIDEO_LOCAL_COMMAND", "render --in {image} --voice {audio}")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 90*time.Minute, cfg.Storage.Retention)
	assert.True(t, cfg.Server.ExposeErrorDetails)
	assert.Equal(t, []string{"render", "--in", "{image}", "--voice", "{audio}"}, cfg.Video.LocalCommand)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadCommandJSONArray(t *testing.T) {
	t.Setenv("TTS_LOCAL_COMMAND", `["python3", "/opt/My Models/tts.py", "--text", "{text}"]`)
	t.Setenv("VIDEO_LOCAL_COMMAND", " render {image} ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"python3", "/opt/My Models/tts.py", "--text", "{text}"}, cfg.TTS.LocalCommand)
	assert.Equal(t, []string{"render", "{image}"}, cfg.Video.LocalCommand)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SERVER_PORT", "http"},
		{"RETENTION", "tomorrow"},
		{"EXPOSE_ERROR_DETAILS", "maybe"},
		{"RATE_LIMIT_RPS", "fast"},
		{"TTS_LOCAL_COMMAND", `["tts", "--text"`},
		{"VIDEO_LOCAL_COMMAND", `["ths", 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "replicate without token",
			mutate:  func(c *Config) { c.TTS.Backend = "replicate" },
			wantErr: "REPLICATE_API_TOKEN",
		},
		{
			name:    "openai without key",
			mutate:  func(c *Config) { c.TTS.Backend = "openai"; c.TTS.OpenAIKey = "" },
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown video backend",
			mutate:  func(c *Config) { c.Video.Backend = "gpu-farm" },
			wantErr: "VIDEO_BACKEND",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Pipeline.MaxConcurrent = 0 },
			wantErr: "MAX_CONCURRENT_GENERATIONS",
		},
		{
			name:   "replicate with token",
			mutate: func(c *Config) { c.TTS.Backend = "replicate"; c.Video.Backend = "replicate"; c.Replicate.APIToken = "r8_x" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Pipeline: PipelineConfig{MaxConcurrent: 1},
				TTS:      TTSConfig{Backend: "local", LocalCommand: []string{"tts"}},
				Video:    VideoConfig{Backend: "local", LocalCommand: []string{"ths"}},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
