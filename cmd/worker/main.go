package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/talkinghead/internal/app"
	"github.com/nikhilbhutani/talkinghead/internal/cache"
	"github.com/nikhilbhutani/talkinghead/internal/config"
	"github.com/nikhilbhutani/talkinghead/internal/jobs"
	"github.com/nikhilbhutani/talkinghead/internal/otel"
	"github.com/nikhilbhutani/talkinghead/internal/queue"
	"github.com/nikhilbhutani/talkinghead/internal/queue/workers"
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

	shutdownTracing, err := otel.Setup(ctx, cfg.Telemetry.ServiceName+"-worker", cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	p, workspaces, err := app.NewPipeline(cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	rdb := app.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	jobStore := jobs.NewStore(cache.NewCache(rdb, "job:"), cfg.Queue.JobTTL)

	redisOpt := queue.RedisOpt(cfg.Redis)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Queue.Concurrency,
		Logger:      newAsynqLogger(logger),
	})

	registry := queue.NewHandlersRegistry()

	genOpts := []workers.GenerateOption{workers.WithErrorDetails(cfg.Server.ExposeErrorDetails)}
	var sweepOpts []workers.SweepOption
	if publisher := app.NewPublisher(cfg.Storage); publisher != nil {
		genOpts = append(genOpts, workers.WithPublisher(publisher, cfg.Storage.Bucket))
		sweepOpts = append(sweepOpts, workers.WithUnpublish(publisher, cfg.Storage.Bucket))
	}
	generateWorker := workers.NewGenerateWorker(p, jobStore, genOpts...)
	sweepWorker := workers.NewSweepWorker(workspaces, cfg.Storage.Retention, sweepOpts...)

	registry.Register(queue.TypeVideoGenerate, generateWorker)
	registry.Register(queue.TypeWorkspaceSweep, sweepWorker)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newAsynqLogger(logger)})
	if _, err := scheduler.Register(cfg.Queue.SweepCron, asynq.NewTask(queue.TypeWorkspaceSweep, nil), asynq.MaxRetry(0)); err != nil {
		slog.Error("invalid SWEEP_CRON", "spec", cfg.Queue.SweepCron, "error", err)
		os.Exit(1)
	}

	slog.Info("starting worker", "concurrency", cfg.Queue.Concurrency, "tasks", registry.Types(), "sweep", cfg.Queue.SweepCron)
	if err := srv.Start(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}
	slog.Info("worker stopped")
}
