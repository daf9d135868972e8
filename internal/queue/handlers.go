package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Processor is implemented by every task worker.
type Processor interface {
	ProcessTask(ctx context.Context, t *asynq.Task) error
}

type HandlersRegistry struct {
	mux   *asynq.ServeMux
	types []string
}

func NewHandlersRegistry() *HandlersRegistry {
	mux := asynq.NewServeMux()
	mux.Use(logTasks)
	return &HandlersRegistry{mux: mux}
}

func (r *HandlersRegistry) Register(taskType string, p Processor) {
	r.mux.HandleFunc(taskType, p.ProcessTask)
	r.types = append(r.types, taskType)
}

// Types lists the registered task types in registration order.
func (r *HandlersRegistry) Types() []string {
	return r.types
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}

func logTasks(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		taskID, _ := asynq.GetTaskID(ctx)
		start := time.Now()

		err := next.ProcessTask(ctx, t)

		log := slog.With("task_type", t.Type(), "task_id", taskID, "duration", time.Since(start))
		if err != nil {
			log.Error("task failed", "error", err)
			return err
		}
		log.Info("task done")
		return nil
	})
}
