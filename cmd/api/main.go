package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/talkinghead/internal/api"
	"github.com/nikhilbhutani/talkinghead/internal/app"
	"github.com/nikhilbhutani/talkinghead/internal/cache"
	"github.com/nikhilbhutani/talkinghead/internal/config"
	"github.com/nikhilbhutani/talkinghead/internal/jobs"
	"github.com/nikhilbhutani/talkinghead/internal/otel"
	"github.com/nikhilbhutani/talkinghead/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	shutdownTracing, err := otel.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	p, _, err := app.NewPipeline(cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	// Redis backs the async job API only; /generate works without it.
	rdb := app.NewRedisClient(cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, job API will return 503", "error", err)
	}
	defer rdb.Close()

	jobStore := jobs.NewStore(cache.NewCache(rdb, "job:"), cfg.Queue.JobTTL)
	queueClient := queue.NewClient(cfg.Redis, cfg.Queue.JobTimeout)
	defer queueClient.Close()

	router := api.NewRouter(cfg, p, rdb, jobStore, queueClient)
	handler := router.Setup()

	// No WriteTimeout: a synchronous generation holds the response open for
	// up to GENERATION_TIMEOUT.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(),
			"tts_backend", cfg.TTS.Backend, "video_backend", cfg.Video.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}
	slog.Info("server stopped")
}
