package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Pipeline  PipelineConfig
	Queue     QueueConfig
	Replicate ReplicateConfig
	TTS       TTSConfig
	Video     VideoConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitRPS       float64
	RateLimitBurst     int
	ExposeErrorDetails bool // surface raw collaborator messages in 500 bodies
	CORSOrigins        []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	UploadDir string
	OutputDir string
	Retention time.Duration

	// Optional Supabase bucket for publishing finished videos.
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type PipelineConfig struct {
	MaxConcurrent int
	Timeout       time.Duration
}

type QueueConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	JobTTL      time.Duration
	SweepCron   string
}

type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	RateLimitRPS float64
}

type TTSConfig struct {
	Backend        string // "local", "replicate" or "openai"
	LocalCommand   []string
	ReplicateModel string
	ReplicateLang  string
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	OpenAIVoice    string
}

type VideoConfig struct {
	Backend        string // "local" or "replicate"
	LocalCommand   []string
	ReplicateModel string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

const (
	defaultTTSCommand   = "python3 models/TTS/Zonos/tts.py --text {text} --reference {reference} --output {output}"
	defaultVideoCommand = "python3 models/THS/AniTalker/ths.py --image {image} --audio {audio} --output-dir {output_dir}"
)

func Load() (*Config, error) {
	// A missing .env is fine; the process environment wins either way.
	_ = godotenv.Load()

	port, err := getEnvInt("SERVER_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	expose, err := getEnvBool("EXPOSE_ERROR_DETAILS", false)
	if err != nil {
		return nil, fmt.Errorf("invalid EXPOSE_ERROR_DETAILS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	retention, err := getEnvDuration("RETENTION", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION: %w", err)
	}

	maxConcurrent, err := getEnvInt("MAX_CONCURRENT_GENERATIONS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CONCURRENT_GENERATIONS: %w", err)
	}

	genTimeout, err := getEnvDuration("GENERATION_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATION_TIMEOUT: %w", err)
	}

	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	jobTimeout, err := getEnvDuration("JOB_TIMEOUT", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}

	jobTTL, err := getEnvDuration("JOB_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TTL: %w", err)
	}

	replicateRPS, err := getEnvFloat("REPLICATE_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REPLICATE_RATE_LIMIT_RPS: %w", err)
	}

	ttsCommand, err := getEnvCommand("TTS_LOCAL_COMMAND", defaultTTSCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_LOCAL_COMMAND: %w", err)
	}

	videoCommand, err := getEnvCommand("VIDEO_LOCAL_COMMAND", defaultVideoCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid VIDEO_LOCAL_COMMAND: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               port,
			RateLimitRPS:       rps,
			RateLimitBurst:     burst,
			ExposeErrorDetails: expose,
			CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
			OutputDir:   getEnv("OUTPUT_DIR", "./outputs"),
			Retention:   retention,
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "videos"),
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: maxConcurrent,
			Timeout:       genTimeout,
		},
		Queue: QueueConfig{
			Concurrency: workerConcurrency,
			JobTimeout:  jobTimeout,
			JobTTL:      jobTTL,
			SweepCron:   getEnv("SWEEP_CRON", "@every 1h"),
		},
		Replicate: ReplicateConfig{
			APIToken:     getEnv("REPLICATE_API_TOKEN", ""),
			BaseURL:      getEnv("REPLICATE_BASE_URL", ""),
			RateLimitRPS: replicateRPS,
		},
		TTS: TTSConfig{
			Backend:        getEnv("TTS_BACKEND", "local"),
			LocalCommand:   ttsCommand,
			ReplicateModel: getEnv("TTS_REPLICATE_MODEL", "lucataco/xtts-v2"),
			ReplicateLang:  getEnv("TTS_REPLICATE_LANGUAGE", "en"),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:    getEnv("TTS_OPENAI_MODEL", "tts-1"),
			OpenAIVoice:    getEnv("TTS_OPENAI_VOICE", "alloy"),
		},
		Video: VideoConfig{
			Backend:        getEnv("VIDEO_BACKEND", "local"),
			LocalCommand:   videoCommand,
			ReplicateModel: getEnv("VIDEO_REPLICATE_MODEL", "cjwbw/sadtalker"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "talkinghead"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports settings the selected backends cannot run without.
func (c *Config) Validate() error {
	var missing []string

	switch c.TTS.Backend {
	case "local":
		if len(c.TTS.LocalCommand) == 0 {
			missing = append(missing, "TTS_LOCAL_COMMAND")
		}
	case "replicate":
		if c.Replicate.APIToken == "" {
			missing = append(missing, "REPLICATE_API_TOKEN")
		}
	case "openai":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q", c.TTS.Backend)
	}

	switch c.Video.Backend {
	case "local":
		if len(c.Video.LocalCommand) == 0 {
			missing = append(missing, "VIDEO_LOCAL_COMMAND")
		}
	case "replicate":
		if c.Replicate.APIToken == "" && c.TTS.Backend != "replicate" {
			missing = append(missing, "REPLICATE_API_TOKEN")
		}
	default:
		return fmt.Errorf("unknown VIDEO_BACKEND %q", c.Video.Backend)
	}

	if c.Pipeline.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT_GENERATIONS must be at least 1")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

// getEnvCommand reads an argv either as a JSON array, for arguments that
// contain spaces, or as whitespace-separated words.
func getEnvCommand(key, fallback string) ([]string, error) {
	v := strings.TrimSpace(getEnv(key, fallback))
	if !strings.HasPrefix(v, "[") {
		return strings.Fields(v), nil
	}

	var argv []string
	if err := json.Unmarshal([]byte(v), &argv); err != nil {
		return nil, err
	}
	return argv, nil
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
